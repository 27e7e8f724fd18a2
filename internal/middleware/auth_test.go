package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/gofiber/fiber/v2"
)

// generateSecret generates a valid secret of specified length
func generateSecret(length int) string {
	key := make([]byte, length)
	for i := range key {
		key[i] = 'a' + byte(i%26)
	}
	return string(key)
}

func newAuthApp(secrets []string, enabled bool) *fiber.App {
	app := fiber.New()
	app.Use(SharedSecretAuth(logging.NewNop(), secrets, enabled))
	app.Get("/v1/surveys", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Post("/v1/responses", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	return app
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected bool
	}{
		{"exactly min length", generateSecret(MinSecretLength), true},
		{"longer than min", generateSecret(64), true},
		{"one char short", generateSecret(MinSecretLength - 1), false},
		{"empty", "", false},
		{"only spaces", "                ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateSecret(tt.secret); got != tt.expected {
				t.Errorf("ValidateSecret(%q) = %v, want %v", tt.secret, got, tt.expected)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		secret   string
		expected string
	}{
		{"abcdefghijklmnop", "abcd****"},
		{"abcd", "****"},
		{"", "****"},
		{"abcde", "abcd****"},
	}

	for _, tt := range tests {
		if got := maskSecret(tt.secret); got != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.expected)
		}
	}
}

func TestSharedSecretAuth_Disabled(t *testing.T) {
	app := newAuthApp(nil, false)

	resp, err := app.Test(httptest.NewRequest("POST", "/v1/responses", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestSharedSecretAuth_ReadsAreOpen(t *testing.T) {
	app := newAuthApp([]string{generateSecret(32)}, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/surveys", nil))
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200 for GET without secret, got %d", resp.StatusCode)
	}
}

func TestSharedSecretAuth_Mutating(t *testing.T) {
	secret := generateSecret(32)
	app := newAuthApp([]string{secret, "short"}, true)

	tests := []struct {
		name       string
		headerName string
		headerVal  string
		wantStatus int
	}{
		{"X-API-Key header", "X-API-Key", secret, fiber.StatusOK},
		{"Authorization Bearer header", "Authorization", "Bearer " + secret, fiber.StatusOK},
		{"Authorization plain header", "Authorization", secret, fiber.StatusOK},
		{"missing secret", "", "", fiber.StatusUnauthorized},
		{"wrong secret", "X-API-Key", secret + "x", fiber.StatusUnauthorized},
		{"weak configured secret is ignored", "X-API-Key", "short", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/responses", nil)
			if tt.headerName != "" {
				req.Header.Set(tt.headerName, tt.headerVal)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to test request: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Expected status %d, got %d, body: %s", tt.wantStatus, resp.StatusCode, string(body))
			}

			if tt.wantStatus == fiber.StatusUnauthorized {
				var env models.Envelope
				if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
					t.Fatalf("Failed to decode envelope: %v", err)
				}
				if env.Status != models.EnvelopeError || env.ErrorCode != 11 {
					t.Errorf("Unexpected envelope %+v", env)
				}
			}
		})
	}
}

func TestIsMutating(t *testing.T) {
	for _, m := range []string{"POST", "PUT", "PATCH", "DELETE"} {
		if !IsMutating(m) {
			t.Errorf("%s should be mutating", m)
		}
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS"} {
		if IsMutating(m) {
			t.Errorf("%s should not be mutating", m)
		}
	}
}
