package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLogger logs every request except the polled endpoints in skip.
// Failed and slow requests are logged as warnings or errors.
func requestLogger(slow time.Duration, skip ...string) fiber.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skipped[path] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		var event *zerolog.Event
		switch {
		case err != nil:
			event = log.Error().Err(err)
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		case slow > 0 && duration > slow:
			event = log.Warn().Bool("slow_request", true)
		default:
			event = log.Debug()
		}

		event.
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("response_bytes", len(c.Response().Body())).
			Msg("HTTP request")

		return err
	}
}
