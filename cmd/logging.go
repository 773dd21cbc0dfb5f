package cmd

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// newLogger returns a structured logger for the long-running commands.
// Logfmt is used when writing to a file rather than a terminal.
func newLogger(w io.Writer, prefix string, logfmt bool) *slog.Logger {
	level := charmLog.InfoLevel
	if verbose {
		level = charmLog.DebugLevel
	}
	formatter := charmLog.TextFormatter
	if logfmt {
		formatter = charmLog.LogfmtFormatter
	}
	handler := charmLog.NewWithOptions(w, charmLog.Options{
		Level:           level,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
	return slog.New(handler)
}

// requestLogger logs each API request after it completes.
func requestLogger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
