package relay

import (
	"net/http"

	"github.com/qfnu-tools/jwxt-relay/internal/api/schema"
	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
	"github.com/rs/zerolog/log"
)

// EndpointCreateSession handles the 'GET /session' endpoint
func (service *Service) EndpointCreateSession(writer http.ResponseWriter, request *http.Request) {
	client, err := upstream.New(service.Config.UpstreamBaseURL, service.Config.UpstreamTimeout)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}

	// Perform the warm-up fetch against the landing page to seed the upstream cookies.
	// The session is only stored if this fetch succeeds.
	if _, err := client.Get(request.Context(), upstream.PathMain); err != nil {
		log.Debug().Err(err).Msg("session warm-up fetch failed")
		service.writer.WriteError(writer, http.StatusBadGateway, schema.ErrUpstream("Failed to create session", err))
		return
	}

	ses, err := service.Sessions.Create(request.Context(), client)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}

	log.Debug().Str("sid", abbreviateSID(ses.ID)).Msg("session created")
	service.writer.WriteJSON(writer, map[string]string{"sessionId": ses.ID})
}

// EndpointGetCaptcha handles the 'GET /captcha?sid={string}' endpoint.
// The CAPTCHA image bytes and content type are passed through verbatim.
func (service *Service) EndpointGetCaptcha(writer http.ResponseWriter, request *http.Request) {
	ses := service.requireSession(writer, request, sessionIDFromRequest(request))
	if ses == nil {
		return
	}

	response, err := ses.Client.Get(request.Context(), upstream.PathCaptcha)
	if err != nil {
		service.writer.WriteError(writer, http.StatusBadGateway, schema.ErrUpstream("Captcha fetch failed", err))
		return
	}

	contentType := response.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	service.writer.WriteBytes(writer, http.StatusOK, contentType, response.Bytes)
}
