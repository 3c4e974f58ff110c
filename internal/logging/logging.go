// Package logging configures the global zerolog logger and provides the Echo
// request-logging middleware.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. Level is one of zerolog's level
// strings; an unknown level falls back to info. Pretty output is intended for
// development consoles.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "fairlens").
		Logger()
}

// NewLogger returns a logger tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger returns Echo middleware that logs each request. Progress and
// health polling endpoints are skipped to keep the log readable.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/api/health" ||
				strings.HasSuffix(path, "/progress") ||
				strings.Contains(path, "/ws/") {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := log.Info()
			if status >= 500 {
				event = log.Error()
			} else if status >= 400 {
				event = log.Warn()
			}
			event.
				Str("method", c.Request().Method).
				Str("path", path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Int64("bytes_out", c.Response().Size).
				Msg("http request")

			return err
		}
	}
}
