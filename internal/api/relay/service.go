package relay

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/qfnu-tools/jwxt-relay/internal/api/schema"
	"github.com/qfnu-tools/jwxt-relay/internal/config"
	"github.com/qfnu-tools/jwxt-relay/internal/session"
	"github.com/rs/zerolog/log"
)

// headerSessionID is the request header alternative to the 'sid' query parameter
const headerSessionID = "X-Session-Id"

// Service represents the relay API service
type Service struct {
	server *http.Server

	Config *config.Config

	Sessions session.Storage

	writer *schema.Writer
}

// Handler builds the relay API HTTP handler
func (service *Service) Handler() http.Handler {
	// Create the HTTP schema writer
	service.writer = &schema.Writer{
		InternalErrorHook: func(err error) {
			log.Error().Err(err).Msg("the relay API experienced an unexpected error")
		},
	}

	// Create the HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RedirectSlashes)
	router.Use(service.middlewareOptionsStatus)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{service.Config.AllowedOrigin},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", headerSessionID},
	}))
	router.Use(service.middlewareRequestLog)
	router.Use(service.middlewareOptions)
	router.Use(service.middlewareSweepSessions)
	router.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteError(writer, http.StatusNotFound, schema.ErrNotFound)
	})
	router.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteError(writer, http.StatusNotFound, schema.ErrNotFound)
	})

	// Register the session lifecycle endpoints
	router.Get("/session", service.EndpointCreateSession)
	router.Get("/captcha", service.EndpointGetCaptcha)
	router.Post("/login", service.EndpointLogin)

	// Register the authenticated relay endpoints
	router.Get("/xsks/query", service.EndpointExamQuery)
	router.Get("/kscj/query", service.EndpointGradeQuery)
	router.Post("/kb/day", service.EndpointDaySchedule)
	router.Post("/xsks/list", service.EndpointExamList)
	router.Post("/kscj/list", service.EndpointGradeList)

	return router
}

// Startup starts up the relay API
func (service *Service) Startup() error {
	server := &http.Server{
		Addr:    service.Config.ListenAddress,
		Handler: service.Handler(),
	}
	service.server = server
	return server.ListenAndServe()
}

// Shutdown shuts down the relay API
func (service *Service) Shutdown() {
	if service.server != nil {
		service.server.Close()
		service.server = nil
	}
}

// sessionIDFromRequest extracts the session identifier out of the 'sid' query
// parameter or, if absent, the X-Session-Id header
func sessionIDFromRequest(request *http.Request) string {
	if sid := strings.TrimSpace(request.URL.Query().Get("sid")); sid != "" {
		return sid
	}
	return strings.TrimSpace(request.Header.Get(headerSessionID))
}

// postSessionID returns the session identifier of a POST operation: the JSON body
// field is authoritative, the query parameter and header are accepted as fallbacks
func postSessionID(request *http.Request, bodySID string) string {
	if bodySID != "" {
		return bodySID
	}
	return sessionIDFromRequest(request)
}

// requireSession resolves the session behind the given identifier, writing the
// appropriate error response and returning nil if the identifier is missing,
// unknown or expired. No upstream call happens in either failure case.
func (service *Service) requireSession(writer http.ResponseWriter, request *http.Request, id string) *session.Session {
	if id == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("sessionId"))
		return nil
	}
	ses, err := service.Sessions.Resolve(request.Context(), id, service.Config.SessionTTL)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return nil
	}
	if ses == nil {
		log.Debug().Str("sid", abbreviateSID(id)).Msg("session expired")
		service.writer.WriteError(writer, http.StatusNotFound, schema.ErrSessionExpired)
		return nil
	}
	return ses
}
