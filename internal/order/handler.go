package order

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/nfc-card-backend/internal/pricing"
	"github.com/wichananm65/nfc-card-backend/internal/user"
)

// Handler exposes the order wizard and the account's order history.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app fiber.Router) {
	app.Post("/api/v1/orders/drafts", h.createDraft)
	app.Get("/api/v1/orders/drafts/:id", h.getDraft)
	app.Patch("/api/v1/orders/drafts/:id", h.updateDraft)
	app.Delete("/api/v1/orders/drafts/:id", h.discardDraft)
	app.Post("/api/v1/orders/drafts/:id/next", h.nextStep)
	app.Post("/api/v1/orders/drafts/:id/prev", h.prevStep)
	app.Get("/api/v1/orders/drafts/:id/totals", h.getTotals)
	app.Post("/api/v1/orders/drafts/:id/submit", h.submit)

	app.Get("/api/v1/orders", h.listOrders)
	app.Get("/api/v1/orders/:transactionId", h.getOrder)
}

type totalsView struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

func newTotalsView(t pricing.Totals) totalsView {
	return totalsView{
		Currency: pricing.Currency,
		Subtotal: t.Subtotal.StringFixed(2),
		Shipping: t.Shipping.StringFixed(2),
		Tax:      t.Tax.StringFixed(2),
		Total:    t.Total.StringFixed(2),
	}
}

type draftView struct {
	ID            string      `json:"id"`
	Step          Step        `json:"step"`
	Phase         string      `json:"phase"`
	Processing    bool        `json:"processing"`
	OrderComplete bool        `json:"orderComplete"`
	TransactionID string      `json:"transactionId,omitempty"`
	Error         string      `json:"error,omitempty"`
	Form          Form        `json:"form"`
	Totals        *totalsView `json:"totals,omitempty"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func newDraftView(d Draft) draftView {
	v := draftView{
		ID:            d.ID,
		Step:          d.State.Step,
		Phase:         d.State.Phase(),
		Processing:    d.State.Processing,
		OrderComplete: d.State.Complete,
		TransactionID: d.State.TransactionID,
		Error:         d.State.Error,
		Form:          d.State.Form.Redacted(),
		UpdatedAt:     d.UpdatedAt,
	}
	if t, err := d.State.Form.Totals(); err == nil {
		tv := newTotalsView(t)
		v.Totals = &tv
	}
	return v
}

type confirmationView struct {
	Confirmation
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

func newConfirmationView(c Confirmation) confirmationView {
	return confirmationView{
		Confirmation: c,
		Subtotal:     c.Subtotal.StringFixed(2),
		Shipping:     c.Shipping.StringFixed(2),
		Tax:          c.Tax.StringFixed(2),
		Total:        c.Total.StringFixed(2),
	}
}

// updateRequest accepts either a single {"field", "value"} pair or a
// "fields" object. Values may be JSON strings or numbers.
type updateRequest struct {
	Field  string                     `json:"field"`
	Value  json.RawMessage            `json:"value"`
	Fields map[string]json.RawMessage `json:"fields"`
}

func (r updateRequest) values() (map[Field]string, error) {
	out := make(map[Field]string, len(r.Fields)+1)
	if r.Field != "" {
		v, err := rawToString(r.Value)
		if err != nil {
			return nil, err
		}
		out[Field(r.Field)] = v
	}
	for k, raw := range r.Fields {
		v, err := rawToString(raw)
		if err != nil {
			return nil, err
		}
		out[Field(k)] = v
	}
	if len(out) == 0 {
		return nil, errors.New("field is required")
	}
	return out, nil
}

func rawToString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.New("value must be a string or a number")
	}
	return n.String(), nil
}

func (h *Handler) createDraft(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	d, err := h.service.CreateDraft(c.UserContext(), accountID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newDraftView(d))
}

func (h *Handler) getDraft(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	d, err := h.service.GetDraft(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newDraftView(d))
}

func (h *Handler) updateDraft(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(updateRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	values, err := payload.values()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	d, err := h.service.UpdateFields(c.UserContext(), accountID, c.Params("id"), values)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newDraftView(d))
}

func (h *Handler) discardDraft(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	if err := h.service.DiscardDraft(c.UserContext(), accountID, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) nextStep(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	d, err := h.service.NextStep(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newDraftView(d))
}

func (h *Handler) prevStep(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	d, err := h.service.PrevStep(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newDraftView(d))
}

func (h *Handler) getTotals(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	t, err := h.service.Totals(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newTotalsView(t))
}

func (h *Handler) submit(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	res, err := h.service.Submit(c.UserContext(), accountID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !res.Success {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"success": false, "error": res.Error})
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"transactionId": res.TransactionID,
		"totals":        newTotalsView(res.Totals),
	})
}

func (h *Handler) listOrders(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	page, _ := strconv.ParseInt(c.Query("page"), 10, 64)

	p, err := h.service.ListOrders(c.UserContext(), accountID, limit, page)
	if err != nil {
		return writeError(c, err)
	}
	views := make([]confirmationView, 0, len(p.Orders))
	for _, item := range p.Orders {
		views = append(views, newConfirmationView(item))
	}
	return c.JSON(fiber.Map{
		"orders":   views,
		"total":    p.Total,
		"page":     p.Page,
		"limit":    p.Limit,
		"lastPage": p.LastPage,
	})
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	accountID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	conf, err := h.service.GetOrder(c.UserContext(), accountID, c.Params("transactionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(newConfirmationView(conf))
}

func writeError(c *fiber.Ctx, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": ve.Error(), "fields": ve.Fields})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOrderNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrInvalidField):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrNotOnFinalStep),
		errors.Is(err, ErrSubmissionInProgress),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
