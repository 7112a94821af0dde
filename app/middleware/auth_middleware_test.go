package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware_Authenticate(t *testing.T) {
	auth := NewAuthMiddleware([]string{"bot-token", "  ", "ops-token"})
	require.True(t, auth.Enabled())

	app := fiber.New()
	app.Use(auth.Authenticate())
	app.Get("/", func(c fiber.Ctx) error {
		idx, ok := GetCallerFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"caller": idx})
	})

	tests := []struct {
		name         string
		header       string
		expectStatus int
		expectCode   string
		expectCaller int
	}{
		{"first token", "Bearer bot-token", http.StatusOK, "", 0},
		{"second token", "Bearer ops-token", http.StatusOK, "", 1},
		{"missing header", "", http.StatusUnauthorized, "MISSING_AUTHORIZATION_HEADER", 0},
		{"wrong scheme", "Basic Ym90LXRva2Vu", http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", 0},
		{"unknown token", "Bearer guess", http.StatusUnauthorized, "TOKEN_INVALID", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectStatus, resp.StatusCode)

			var body struct {
				Caller int `json:"caller"`
				Error  struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.expectCode, body.Error.Code)
			if tt.expectStatus == http.StatusOK {
				assert.Equal(t, tt.expectCaller, body.Caller)
			}
		})
	}
}

func TestAuthMiddleware_DisabledWithoutTokens(t *testing.T) {
	assert.False(t, NewAuthMiddleware(nil).Enabled())
	assert.False(t, NewAuthMiddleware([]string{"", " "}).Enabled())
}
