package finance

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const dateOnly = "2006-01-02"

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterAdminRoutes mounts the back office endpoints. The router is
// expected to be guarded by user.RequireAdmin.
func (h *Handler) RegisterAdminRoutes(r fiber.Router) {
	r.Get("/finance/transactions", h.getTransactions)
	r.Get("/finance/bank-accounts", h.getBankAccounts)
	r.Put("/finance/bank-accounts/:id/default", h.setDefaultBankAccount)
	r.Get("/finance/processors", h.getProcessors)
	r.Get("/finance/metrics", h.getMetrics)
	r.Post("/finance/payments", h.processPayment)
	r.Post("/finance/payouts", h.initiatePayout)
	r.Get("/finance/payout-settings", h.getPayoutSettings)
	r.Put("/finance/payout-settings", h.updatePayoutSettings)
}

// parseDateRange reads from/to as RFC 3339 timestamps or plain dates. A
// plain "to" date includes that whole day.
func parseDateRange(c *fiber.Ctx) (DateRange, error) {
	var r DateRange
	if v := c.Query("from"); v != "" {
		t, _, err := parseTime(v)
		if err != nil {
			return r, errors.New("from must be a date (YYYY-MM-DD) or RFC 3339 time")
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, wholeDay, err := parseTime(v)
		if err != nil {
			return r, errors.New("to must be a date (YYYY-MM-DD) or RFC 3339 time")
		}
		if wholeDay {
			t = t.AddDate(0, 0, 1)
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, errors.New("from must be before to")
	}
	return r, nil
}

func parseTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}

func splitList(v string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) getTransactions(c *fiber.Ctx) error {
	r, err := parseDateRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	page, _ := strconv.ParseInt(c.Query("page"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)

	f := TransactionFilter{Search: c.Query("search")}
	for _, t := range splitList(c.Query("type")) {
		tt := TransactionType(t)
		if tt != TypeCardPurchase && tt != TypePayout && tt != TypeRefund {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "unknown transaction type " + t})
		}
		f.Types = append(f.Types, tt)
	}
	for _, s := range splitList(c.Query("status")) {
		st := TransactionStatus(s)
		if st != StatusCompleted && st != StatusProcessing && st != StatusFailed {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "unknown transaction status " + s})
		}
		f.Statuses = append(f.Statuses, st)
	}

	res, err := h.service.GetTransactions(c.UserContext(), r, page, limit, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) getBankAccounts(c *fiber.Ctx) error {
	res, err := h.service.GetBankAccounts(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) setDefaultBankAccount(c *fiber.Ctx) error {
	if err := h.service.SetDefaultBankAccount(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"defaultBankAccountId": c.Params("id")})
}

func (h *Handler) getProcessors(c *fiber.Ctx) error {
	res, err := h.service.GetPaymentProcessors(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) getMetrics(c *fiber.Ctx) error {
	r, err := parseDateRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	res, err := h.service.GetFinancialMetrics(c.UserContext(), r)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) processPayment(c *fiber.Ctx) error {
	payload := new(PaymentRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	t, err := h.service.ProcessPayment(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *Handler) initiatePayout(c *fiber.Ctx) error {
	payload := new(PayoutRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	t, err := h.service.InitiatePayoutToBank(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *Handler) getPayoutSettings(c *fiber.Ctx) error {
	res, err := h.service.GetPayoutSettings(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) updatePayoutSettings(c *fiber.Ctx) error {
	payload := new(PayoutSettings)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	res, err := h.service.UpdatePayoutSettings(c.UserContext(), *payload)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidSettings):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrSimulatedFailure):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": err.Error(), "retryable": true})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
