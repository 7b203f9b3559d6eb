package middleware

import (
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a middleware that logs each HTTP request in JSON format to stdout.
func Logger() fiber.Handler {
	return LoggerWithWriter(os.Stdout, time.UTC)
}

// LoggerWithWriter logs one JSON line per request to w with the fields
// request_id, method, path, status, latency (milliseconds) and ts (RFC3339 in loc).
//
// It also stores a request-scoped zerolog logger carrying request_id in the
// user context, so log.Ctx(ctx) in downstream code is correlated.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	if loc == nil {
		loc = time.UTC
	}
	access := zerolog.New(w)

	return func(c *fiber.Ctx) error {
		start := time.Now()
		rid := RequestIDFrom(c)

		reqLogger := log.Logger.With().Str("request_id", rid).Logger()
		c.SetUserContext(reqLogger.WithContext(c.UserContext()))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		access.Log().
			Str("ts", time.Now().In(loc).Format(time.RFC3339Nano)).
			Str("level", levelFor(status)).
			Str("request_id", rid).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Float64("latency", float64(time.Since(start).Microseconds())/1000).
			Send()

		return err
	}
}

func levelFor(status int) string {
	switch {
	case status >= 500:
		return zerolog.LevelErrorValue
	case status >= 400:
		return zerolog.LevelWarnValue
	default:
		return zerolog.LevelInfoValue
	}
}
