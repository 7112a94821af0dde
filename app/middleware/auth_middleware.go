// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/dto"
)

const callerLocalKey = "api_caller"

// AuthMiddleware guards internal endpoints with static service tokens.
// The bot front end is the only caller of the top-up API.
type AuthMiddleware struct {
	digests [][sha256.Size]byte
}

// NewAuthMiddleware creates the middleware. Empty tokens are ignored.
func NewAuthMiddleware(tokens []string) *AuthMiddleware {
	m := &AuthMiddleware{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			m.digests = append(m.digests, sha256.Sum256([]byte(t)))
		}
	}
	return m
}

// Enabled reports whether at least one token is configured
func (m *AuthMiddleware) Enabled() bool {
	return len(m.digests) > 0
}

// Authenticate rejects requests without a known bearer token
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Authorization header is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_AUTHORIZATION_HEADER",
				},
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid authorization header format. Expected 'Bearer <token>'",
				Error: dto.ErrorDetail{
					Code: "INVALID_AUTHORIZATION_FORMAT",
				},
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Access token is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_ACCESS_TOKEN",
				},
			})
		}

		idx, ok := m.match(token)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid access token",
				Error: dto.ErrorDetail{
					Code: "TOKEN_INVALID",
				},
			})
		}

		c.Locals(callerLocalKey, idx)
		return c.Next()
	}
}

// match compares digests in constant time and checks every token
func (m *AuthMiddleware) match(token string) (int, bool) {
	digest := sha256.Sum256([]byte(token))
	found := -1
	for i, d := range m.digests {
		if subtle.ConstantTimeCompare(digest[:], d[:]) == 1 {
			found = i
		}
	}
	return found, found >= 0
}

// GetCallerFromContext returns the index of the token that authenticated the request
func GetCallerFromContext(c fiber.Ctx) (int, bool) {
	idx, ok := c.Locals(callerLocalKey).(int)
	return idx, ok
}
