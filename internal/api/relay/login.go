package relay

import (
	"net/http"

	"github.com/qfnu-tools/jwxt-relay/internal/api/schema"
	"github.com/qfnu-tools/jwxt-relay/internal/login"
	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	Password  string `json:"password" trim:"false"`
	Captcha   string `json:"captcha"`
}

type loginResponse struct {
	OK       bool    `json:"ok"`
	Raw      string  `json:"raw"`
	Alert    *string `json:"alert"`
	FinalURL string  `json:"finalUrl"`
}

// EndpointLogin handles the 'POST /login' endpoint
func (service *Service) EndpointLogin(writer http.ResponseWriter, request *http.Request) {
	body, validationErr, err := schema.UnmarshalBody[loginRequest](request)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}
	if validationErr != nil {
		service.writer.WriteError(writer, http.StatusBadRequest, validationErr)
		return
	}

	sid := postSessionID(request, body.SessionID)
	if sid == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("sessionId"))
		return
	}
	if body.Username == "" || body.Password == "" || body.Captcha == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, &schema.Error{Message: "Missing username, password, or captcha"})
		return
	}

	ses := service.requireSession(writer, request, sid)
	if ses == nil {
		return
	}

	response, err := ses.Client.PostForm(request.Context(), upstream.PathLogin, upstream.LoginForm(body.Username, body.Password, body.Captcha))
	if err != nil {
		service.writer.WriteError(writer, http.StatusBadGateway, schema.ErrUpstream("Login request failed", err))
		return
	}

	ok := login.IsSuccess(response)
	var alert *string
	if message, found := login.ExtractAlert(response.Body); found {
		alert = &message
	}

	// Record the verdict on the session; authentication state itself lives in the
	// upstream cookie jar and is never enforced by the relay.
	if err := service.Sessions.SetAuthenticated(request.Context(), ses.ID, ok); err != nil {
		log.Error().Err(err).Msg("could not record the login verdict")
	}

	log.Debug().
		Str("sid", abbreviateSID(ses.ID)).
		Bool("ok", ok).
		Str("final_url", response.FinalURL).
		Msg("login attempt relayed")
	service.writer.WriteJSON(writer, &loginResponse{
		OK:       ok,
		Raw:      response.Body,
		Alert:    alert,
		FinalURL: response.FinalURL,
	})
}
