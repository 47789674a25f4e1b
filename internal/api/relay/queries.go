package relay

import (
	"net/http"
	"net/url"

	"github.com/qfnu-tools/jwxt-relay/internal/api/schema"
	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
)

// EndpointExamQuery handles the 'GET /xsks/query?sid={string}' endpoint
func (service *Service) EndpointExamQuery(writer http.ResponseWriter, request *http.Request) {
	service.relayGet(writer, request, upstream.PathExamQuery, "Query fetch failed")
}

// EndpointGradeQuery handles the 'GET /kscj/query?sid={string}' endpoint
func (service *Service) EndpointGradeQuery(writer http.ResponseWriter, request *http.Request) {
	service.relayGet(writer, request, upstream.PathGradeQuery, "Query fetch failed")
}

type dayScheduleRequest struct {
	SessionID string `json:"sessionId"`
	RQ        string `json:"rq"`
}

// EndpointDaySchedule handles the 'POST /kb/day' endpoint
func (service *Service) EndpointDaySchedule(writer http.ResponseWriter, request *http.Request) {
	body, validationErr, err := schema.UnmarshalBody[dayScheduleRequest](request)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}
	if validationErr != nil {
		service.writer.WriteError(writer, http.StatusBadRequest, validationErr)
		return
	}

	// The session identifier is always checked first
	sid := postSessionID(request, body.SessionID)
	if sid == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("sessionId"))
		return
	}
	if body.RQ == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("rq"))
		return
	}

	ses := service.requireSession(writer, request, sid)
	if ses == nil {
		return
	}

	service.relayPostForm(writer, request, ses.Client, upstream.PathSchedule, url.Values{
		"rq": {body.RQ},
	}, "Schedule request failed")
}

type examListRequest struct {
	SessionID string `json:"sessionId"`
	XNXQID    string `json:"xnxqid"`
	XQLB      string `json:"xqlb"`
}

// EndpointExamList handles the 'POST /xsks/list' endpoint
func (service *Service) EndpointExamList(writer http.ResponseWriter, request *http.Request) {
	body, validationErr, err := schema.UnmarshalBody[examListRequest](request)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}
	if validationErr != nil {
		service.writer.WriteError(writer, http.StatusBadRequest, validationErr)
		return
	}

	// The session identifier is always checked first
	sid := postSessionID(request, body.SessionID)
	if sid == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("sessionId"))
		return
	}
	if body.XNXQID == "" {
		service.writer.WriteError(writer, http.StatusBadRequest, schema.ErrMissingParameter("xnxqid"))
		return
	}

	ses := service.requireSession(writer, request, sid)
	if ses == nil {
		return
	}

	// The placeholder fields are sent empty but must be present for the portal
	// to accept the query
	service.relayPostForm(writer, request, ses.Client, upstream.PathExamList, url.Values{
		"xqlbmc": {""},
		"sxxnxq": {""},
		"dqxnxq": {""},
		"ckbz":   {""},
		"xnxqid": {body.XNXQID},
		"xqlb":   {body.XQLB},
	}, "List request failed")
}

type gradeListRequest struct {
	SessionID string `json:"sessionId"`
	KKSJ      string `json:"kksj"`
	KCXZ      string `json:"kcxz"`
	KCMC      string `json:"kcmc"`
	XSFS      string `json:"xsfs"`
}

// EndpointGradeList handles the 'POST /kscj/list' endpoint.
// All filter fields are optional; empty filters list every grade.
func (service *Service) EndpointGradeList(writer http.ResponseWriter, request *http.Request) {
	body, validationErr, err := schema.UnmarshalBody[gradeListRequest](request)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}
	if validationErr != nil {
		service.writer.WriteError(writer, http.StatusBadRequest, validationErr)
		return
	}

	ses := service.requireSession(writer, request, postSessionID(request, body.SessionID))
	if ses == nil {
		return
	}

	service.relayPostForm(writer, request, ses.Client, upstream.PathGradeList, url.Values{
		"kksj": {body.KKSJ},
		"kcxz": {body.KCXZ},
		"kcmc": {body.KCMC},
		"xsfs": {body.XSFS},
	}, "List request failed")
}

// relayGet performs one upstream GET exchange on behalf of the resolved session and
// passes the decoded payload through verbatim
func (service *Service) relayGet(writer http.ResponseWriter, request *http.Request, path, failureMessage string) {
	ses := service.requireSession(writer, request, sessionIDFromRequest(request))
	if ses == nil {
		return
	}

	response, err := ses.Client.Get(request.Context(), path)
	if err != nil {
		service.writer.WriteError(writer, http.StatusBadGateway, schema.ErrUpstream(failureMessage, err))
		return
	}
	service.writer.WriteText(writer, http.StatusOK, response.Body)
}

// relayPostForm performs one upstream form POST exchange and passes the decoded
// payload through verbatim
func (service *Service) relayPostForm(writer http.ResponseWriter, request *http.Request, client *upstream.Client, path string, form url.Values, failureMessage string) {
	response, err := client.PostForm(request.Context(), path, form)
	if err != nil {
		service.writer.WriteError(writer, http.StatusBadGateway, schema.ErrUpstream(failureMessage, err))
		return
	}
	service.writer.WriteText(writer, http.StatusOK, response.Body)
}
