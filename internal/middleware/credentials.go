package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/castos/studio/internal/auth"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/model"
	"github.com/castos/studio/pkg/response"
	"github.com/gofiber/fiber/v2"
)

// Context locals set by Credentials
const (
	LocalToken  = "token"
	LocalUserID = "userId"
	LocalOwner  = "owner"
	LocalClaims = "claims"
)

// AnonymousOwner scopes cached data of requests that carry no credential
const AnonymousOwner = "anonymous"

// CredentialsMiddleware forwards the caller's identity-provider token to the
// backend. It never rejects a request: the backend is the only authority on
// access, the gateway just learns who is asking when it can.
type CredentialsMiddleware struct {
	verifier auth.TokenVerifier
	// gateway trusts X-User-* headers set by a ForwardAuth proxy
	gateway bool
}

func NewCredentialsMiddleware(verifier auth.TokenVerifier) *CredentialsMiddleware {
	return &CredentialsMiddleware{verifier: verifier}
}

// NewGatewayCredentialsMiddleware reads identity from proxy headers instead
// of verifying the token itself
func NewGatewayCredentialsMiddleware() *CredentialsMiddleware {
	return &CredentialsMiddleware{gateway: true}
}

// Extract stores the bearer token (or ?token= for WebSocket upgrades) and,
// if it verifies, the user's claims
func (m *CredentialsMiddleware) Extract() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		c.Locals(LocalToken, token)

		var userID string
		switch {
		case m.gateway:
			if userID = c.Get("X-User-Id"); userID != "" {
				c.Locals(LocalClaims, &auth.Claims{
					UserID:  userID,
					Email:   c.Get("X-User-Email"),
					Name:    c.Get("X-User-Name"),
					Picture: c.Get("X-User-Avatar"),
				})
			}
		case m.verifier != nil && token != "":
			if claims, err := m.verifier.Validate(token); err == nil {
				userID = claims.UserID
				c.Locals(LocalClaims, claims)
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalOwner, OwnerKey(userID, token))
		return c.Next()
	}
}

// RequireUser rejects requests without verified claims
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetClaims(c) == nil {
			return response.Unauthorized(c, "Not signed in")
		}
		return c.Next()
	}
}

// OwnerKey scopes cached snapshots. Verified users are keyed by id; an
// unverifiable token by its digest, so distinct credentials never share data.
func OwnerKey(userID, token string) string {
	if userID != "" {
		return "user:" + userID
	}
	if token == "" {
		return AnonymousOwner
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:12])
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetToken returns the caller's raw credential, possibly empty
func GetToken(c *fiber.Ctx) string {
	if token, ok := c.Locals(LocalToken).(string); ok {
		return token
	}
	return ""
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(LocalUserID).(string); ok {
		return userID
	}
	return ""
}

// GetOwner returns the cache scope of the caller
func GetOwner(c *fiber.Ctx) string {
	if owner, ok := c.Locals(LocalOwner).(string); ok && owner != "" {
		return owner
	}
	return AnonymousOwner
}

// GetClaims returns the verified claims, or nil
func GetClaims(c *fiber.Ctx) *auth.Claims {
	if claims, ok := c.Locals(LocalClaims).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// GetUser maps the verified claims to the current user
func GetUser(c *fiber.Ctx) (model.CurrentUser, bool) {
	claims := GetClaims(c)
	if claims == nil {
		return model.CurrentUser{}, false
	}
	return claims.User(), true
}

// RequestTokens is the credential source for backend calls made on behalf of
// c. It re-reads nothing: a request's token cannot change mid-flight.
func RequestTokens(c *fiber.Ctx) client.TokenSource {
	return client.StaticToken(GetToken(c))
}
