package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/dpxrk/pactwise-signflow/crypts"
	"github.com/gofiber/fiber/v3"
)

// Public routes that don't require authentication. CRL and OCSP must stay
// reachable by anyone validating a certificate; signatory actions carry a
// portal-resolved signatory id, authenticated upstream.
var publicRoutes = []string{
	"/",
	"/index",
	"/healthz",
	"/api/v1/crl",
	"/api/v1/ocsp",
	"/api/v1/signatories",
}

// AuthMiddleware guards the admin surface with the internal API key.
func AuthMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		path := c.Path()

		for _, route := range publicRoutes {
			if path == route || strings.HasPrefix(path, route+"/") {
				return c.Next()
			}
		}

		key := c.Get("X-API-Key")
		expected := crypts.GetInternalAPIKey()
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  "error",
				"message": "invalid or missing API key",
			})
		}

		return c.Next()
	}
}
