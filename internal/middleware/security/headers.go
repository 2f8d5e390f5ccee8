// Package security sets response headers appropriate for a JSON API
// that serves no HTML of its own.
package security

import (
	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	// IsDevelopment disables HSTS so local plain-HTTP clients work.
	IsDevelopment bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// responses carry audit evidence; never let intermediaries
		// cache them
		c.Set("Cache-Control", "no-store")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// the backend only emits JSON and xlsx attachments, so nothing
		// it serves may load subresources or be framed
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		return c.Next()
	}
}
