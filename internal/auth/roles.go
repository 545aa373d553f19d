package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpline-labs/support-desk/internal/domain"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// RequireRole ensures the caller carries at least one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		for _, role := range allowed {
			if principal.HasRole(role) {
				return c.Next()
			}
		}
		return apperrors.NewAuthorizationDenied("RequireRole")
	}
}

// RequireStaff admits Admins and Agents.
func RequireStaff() fiber.Handler {
	return RequireRole(domain.RoleAdmin, domain.RoleAgent)
}
