package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// middlewareRequestLog logs every handled request with a generated request ID
func (service *Service) middlewareRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		wrapped := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)
		next.ServeHTTP(wrapped, request)
		log.Debug().
			Str("request_id", requestID).
			Str("method", request.Method).
			Str("path", request.URL.Path).
			Int("status", wrapped.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// middlewareOptions answers bare OPTIONS probes on any path with 204.
// CORS preflights never reach this point; the cors middleware answers them.
func (service *Service) middlewareOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// optionsStatusWriter downgrades a 200 on an OPTIONS exchange to 204.
// The cors middleware terminates preflights with an empty 200 body itself, so the
// status has to be rewritten from outside of it.
type optionsStatusWriter struct {
	http.ResponseWriter
}

func (writer optionsStatusWriter) WriteHeader(status int) {
	if status == http.StatusOK {
		status = http.StatusNoContent
	}
	writer.ResponseWriter.WriteHeader(status)
}

// middlewareOptionsStatus makes every OPTIONS exchange, preflight or bare, end in 204
func (service *Service) middlewareOptionsStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method == http.MethodOptions {
			writer = optionsStatusWriter{writer}
		}
		next.ServeHTTP(writer, request)
	})
}

// middlewareSweepSessions opportunistically evicts expired sessions at the start of
// every inbound request. Cheap and amortized; load is bounded by interactive traffic.
func (service *Service) middlewareSweepSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		n, err := service.Sessions.TerminateExpired(request.Context(), service.Config.SessionTTL)
		if err != nil {
			log.Error().Err(err).Msg("could not sweep expired sessions")
		} else if n > 0 {
			log.Debug().Int("amount", n).Msg("swept expired sessions")
		}
		next.ServeHTTP(writer, request)
	})
}

// abbreviateSID shortens a session identifier for log output
func abbreviateSID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
