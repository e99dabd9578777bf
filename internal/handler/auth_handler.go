package handler

import (
	"github.com/castos/studio/internal/auth"
	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/pkg/response"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler exposes the caller's identity
type AuthHandler struct {
	verifier auth.TokenVerifier
}

func NewAuthHandler(verifier auth.TokenVerifier) *AuthHandler {
	return &AuthHandler{verifier: verifier}
}

// Me handles GET /api/me
// @Summary      Current user
// @Description  Name, email and avatar of the signed-in user
// @Tags         Auth
// @Produce      json
// @Success      200 {object} model.CurrentUser
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not signed in")
	}
	return response.OK(c, user)
}

// Verify handles GET /auth/verify for a ForwardAuth proxy placed in front of
// gateway-mode instances. Returns 200 with X-User-* headers on success.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token := middleware.GetToken(c)
	if token == "" || h.verifier == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := h.verifier.Validate(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	user := claims.User()
	c.Set("X-User-Id", user.ID)
	c.Set("X-User-Email", user.Email)
	c.Set("X-User-Name", user.Name)
	if user.Avatar != "" {
		c.Set("X-User-Avatar", user.Avatar)
	}
	return c.SendStatus(fiber.StatusOK)
}
