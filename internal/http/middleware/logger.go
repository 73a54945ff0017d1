package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// LoggerWithWriter logs each request to w with request_id, method, path, status,
// latency (milliseconds) and ts in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	logger := zerolog.New(w)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		logger.Info().
			Str("ts", time.Now().In(loc).Format(time.RFC3339Nano)).
			Str("request_id", rid).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Float64("latency", float64(time.Since(start).Microseconds())/1000).
			Send()

		return err
	}
}
