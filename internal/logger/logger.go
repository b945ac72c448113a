package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	httpmiddleware "github.com/xard1993/komun-api/internal/http"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// RequestIDFunc returns the request id assigned by an upstream middleware.
type RequestIDFunc func(r *http.Request) string

// Requests attaches a request scoped logger to the context and logs each
// request once it completes. Server errors are logged at error level.
func Requests(logger zerolog.Logger, requestID RequestIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			lc := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("addr", httpmiddleware.ExtractClientIP(r))
			if requestID != nil {
				if id := requestID(r); id != "" {
					lc = lc.Str("request_id", id)
				}
			}
			reqLogger := lc.Logger()

			rec := httpmiddleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(reqLogger.WithContext(r.Context())))

			event := reqLogger.Info()
			if rec.Status >= http.StatusInternalServerError {
				event = reqLogger.Error()
			}
			event.
				Int("status", rec.Status).
				Int("bytes", rec.Bytes).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}
