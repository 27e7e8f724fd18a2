package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/gofiber/fiber/v2"
)

// MinSecretLength is the minimum accepted length of a shared secret
const MinSecretLength = 16

// ValidateSecret checks if a shared secret is strong enough to be accepted
func ValidateSecret(secret string) bool {
	if len(secret) < MinSecretLength {
		return false
	}
	return strings.TrimSpace(secret) != ""
}

// IsMutating reports whether method changes server state
func IsMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}

// SharedSecretAuth rejects mutating requests that do not carry one of the
// configured secrets. Reads are always allowed.
func SharedSecretAuth(logger *logging.Logger, secrets []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	accepted := make([][]byte, 0, len(secrets))
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if !ValidateSecret(secret) {
			logger.Warn("Shared secret does not meet security requirements",
				"secret_length", len(secret),
				"min_required", MinSecretLength,
				"secret_prefix", maskSecret(secret),
			)
			continue
		}
		accepted = append(accepted, []byte(secret))
	}

	if len(accepted) == 0 && len(secrets) > 0 {
		logger.Error("No valid shared secrets configured - all mutating requests will be rejected",
			"total_secrets", len(secrets),
			"min_required_length", MinSecretLength,
		)
	}

	return func(c *fiber.Ctx) error {
		if !IsMutating(c.Method()) {
			return c.Next()
		}

		// X-API-Key, "Authorization: Bearer <secret>" or "Authorization: <secret>"
		secret := c.Get("X-API-Key")
		if secret == "" {
			if header := c.Get(fiber.HeaderAuthorization); header != "" {
				if after, ok := strings.CutPrefix(header, "Bearer "); ok {
					secret = after
				} else {
					secret = header
				}
			}
		}

		if secret == "" {
			logger.Warn("Shared secret missing",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
			)
			return unauthorized(c, "a shared secret is required for this request")
		}

		if !matches(accepted, []byte(secret)) {
			logger.Warn("Invalid shared secret",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
				"secret_prefix", maskSecret(secret),
			)
			return unauthorized(c, "invalid shared secret")
		}

		return c.Next()
	}
}

func matches(accepted [][]byte, candidate []byte) bool {
	ok := false
	for _, secret := range accepted {
		if subtle.ConstantTimeCompare(secret, candidate) == 1 {
			ok = true
		}
	}
	return ok
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(
		models.Failure(int(services.CodeUnauthorized), message))
}

// maskSecret masks a secret for logging (show only first 4 chars)
func maskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
