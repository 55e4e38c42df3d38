package user

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const RoleAdmin = "admin"

func claimsFromCtx(c *fiber.Ctx) (jwt.MapClaims, bool) {
	tok, ok := c.Locals("user").(*jwt.Token)
	if !ok || tok == nil {
		return nil, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	return claims, ok
}

// GetUserIDFromCtx extracts the account id from the JWT token stored in
// `c.Locals("user")`. The identity provider puts it in "sub"; older tokens
// carry a numeric "user_id" instead.
func GetUserIDFromCtx(c *fiber.Ctx) (string, error) {
	claims, ok := claimsFromCtx(c)
	if !ok {
		return "", fiber.ErrUnauthorized
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	switch v := claims["user_id"].(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case string:
		if v != "" {
			return v, nil
		}
	}
	return "", fiber.ErrUnauthorized
}

func IsAdmin(c *fiber.Ctx) bool {
	claims, ok := claimsFromCtx(c)
	if !ok {
		return false
	}
	role, _ := claims["role"].(string)
	return role == RoleAdmin
}

// RequireAdmin rejects requests whose token does not carry role=admin.
func RequireAdmin(c *fiber.Ctx) error {
	if _, err := GetUserIDFromCtx(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	if !IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "admin access required"})
	}
	return c.Next()
}
