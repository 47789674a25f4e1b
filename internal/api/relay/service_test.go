package relay_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qfnu-tools/jwxt-relay/internal/api/relay"
	"github.com/qfnu-tools/jwxt-relay/internal/config"
	"github.com/qfnu-tools/jwxt-relay/internal/session/storage/inmem"
	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
	"github.com/stretchr/testify/require"
)

// stubUpstream is a fake portal that counts every request it receives
type stubUpstream struct {
	server *httptest.Server
	mux    *http.ServeMux
	calls  int64
}

func newStubUpstream(t *testing.T) *stubUpstream {
	stub := &stubUpstream{mux: http.NewServeMux()}
	stub.mux.HandleFunc(upstream.PathMain, func(writer http.ResponseWriter, _ *http.Request) {
		http.SetCookie(writer, &http.Cookie{Name: "JSESSIONID", Value: "stub", Path: "/"})
		writer.Write([]byte("<html>landing</html>"))
	})
	stub.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		atomic.AddInt64(&stub.calls, 1)
		stub.mux.ServeHTTP(writer, request)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (stub *stubUpstream) count() int {
	return int(atomic.LoadInt64(&stub.calls))
}

func newTestHandler(t *testing.T, upstreamURL string, ttl time.Duration) http.Handler {
	sessions, err := inmem.New()
	require.NoError(t, err)
	service := &relay.Service{
		Config: &config.Config{
			ListenAddress:   ":0",
			AllowedOrigin:   "*",
			UpstreamBaseURL: upstreamURL,
			UpstreamTimeout: 5 * time.Second,
			SessionTTL:      ttl,
			SweepInterval:   time.Minute,
		},
		Sessions: sessions,
	}
	return service.Handler()
}

func createSession(t *testing.T, handler http.Handler) string {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.NotEmpty(t, payload["sessionId"])
	return payload["sessionId"]
}

func errorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	var payload map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload["error"]
}

func TestEndpointCreateSession(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)

	first := createSession(t, handler)
	second := createSession(t, handler)
	require.NotEqual(t, first, second)
	require.Equal(t, 2, stub.count(), "expected exactly one warm-up fetch per session")
}

func TestEndpointCreateSession_UpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	handler := newTestHandler(t, url, 15*time.Minute)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusBadGateway, recorder.Code)
	require.Equal(t, "Failed to create session", errorMessage(t, recorder))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.NotEmpty(t, payload["detail"])
}

func TestEndpointGetCaptcha(t *testing.T) {
	stub := newStubUpstream(t)
	image := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}
	stub.mux.HandleFunc(upstream.PathCaptcha, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "image/png")
		writer.Write(image)
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	t.Run("session id via query parameter", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/captcha?sid="+sid, nil))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, image, recorder.Body.Bytes())
		require.Equal(t, "image/png", recorder.Header().Get("Content-Type"))
		require.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))
	})

	t.Run("session id via header", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/captcha", nil)
		request.Header.Set("X-Session-Id", sid)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, image, recorder.Body.Bytes())
	})

	t.Run("missing session id", func(t *testing.T) {
		before := stub.count()
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/captcha", nil))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing sessionId", errorMessage(t, recorder))
		require.Equal(t, before, stub.count(), "no upstream call may happen on validation errors")
	})
}

func TestUnknownSessionPerformsNoUpstreamCall(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/captcha?sid=unknown", nil),
		httptest.NewRequest(http.MethodGet, "/xsks/query?sid=unknown", nil),
		httptest.NewRequest(http.MethodGet, "/kscj/query?sid=unknown", nil),
		httptest.NewRequest(http.MethodPost, "/kb/day", strings.NewReader(`{"sessionId":"unknown","rq":"2026-01-05"}`)),
		httptest.NewRequest(http.MethodPost, "/xsks/list", strings.NewReader(`{"sessionId":"unknown","xnxqid":"2025-2026-1"}`)),
		httptest.NewRequest(http.MethodPost, "/kscj/list", strings.NewReader(`{"sessionId":"unknown"}`)),
	}
	for _, request := range requests {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusNotFound, recorder.Code, request.URL.Path)
		require.Equal(t, "Session expired", errorMessage(t, recorder), request.URL.Path)
	}
	require.Equal(t, 0, stub.count())
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 30*time.Millisecond)
	sid := createSession(t, handler)

	time.Sleep(60 * time.Millisecond)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/captcha?sid="+sid, nil))
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, "Session expired", errorMessage(t, recorder))
	require.Equal(t, 1, stub.count(), "only the warm-up fetch may have hit the upstream")
}

func TestEndpointLogin(t *testing.T) {
	stub := newStubUpstream(t)
	var loginBody atomic.Value
	loginBody.Store(`<script>alert('用户名或密码错误')</script>`)
	stub.mux.HandleFunc(upstream.PathLogin, func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, request.ParseForm())
		require.Equal(t, upstream.EncodeCredentials("student", "secret"), request.PostForm.Get("encoded"))
		require.Equal(t, "AB12", request.PostForm.Get("RANDOMCODE"))
		require.Equal(t, "", request.PostForm.Get("userAccount"))
		require.Equal(t, "", request.PostForm.Get("userPassword"))
		writer.Write([]byte(loginBody.Load().(string)))
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	post := func(body string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)))
		return recorder
	}

	type loginResponse struct {
		OK       bool    `json:"ok"`
		Raw      string  `json:"raw"`
		Alert    *string `json:"alert"`
		FinalURL string  `json:"finalUrl"`
	}

	t.Run("missing credentials performs no upstream call", func(t *testing.T) {
		before := stub.count()
		recorder := post(`{"sessionId":"` + sid + `"}`)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing username, password, or captcha", errorMessage(t, recorder))
		require.Equal(t, before, stub.count())
	})

	t.Run("missing session id", func(t *testing.T) {
		recorder := post(`{"username":"student","password":"secret","captcha":"AB12"}`)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing sessionId", errorMessage(t, recorder))
	})

	t.Run("invalid JSON", func(t *testing.T) {
		recorder := post(`{"sessionId":`)
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Invalid JSON", errorMessage(t, recorder))
	})

	t.Run("failed login surfaces the alert", func(t *testing.T) {
		recorder := post(`{"sessionId":"` + sid + `","username":"student","password":"secret","captcha":"AB12"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		var payload loginResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
		require.False(t, payload.OK)
		require.NotNil(t, payload.Alert)
		require.Equal(t, "用户名或密码错误", *payload.Alert)
		require.Contains(t, payload.Raw, "alert")
	})

	t.Run("successful login via body marker", func(t *testing.T) {
		loginBody.Store(`<script>window.location.href="/jsxsd/framework/xsMain.jsp"</script>`)
		recorder := post(`{"sessionId":"` + sid + `","username":"student","password":"secret","captcha":"AB12"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		var payload loginResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
		require.True(t, payload.OK)
		require.Nil(t, payload.Alert)
		require.True(t, strings.HasSuffix(payload.FinalURL, upstream.PathLogin))
	})
}

func TestEndpointLogin_RedirectSuccess(t *testing.T) {
	stub := newStubUpstream(t)
	stub.mux.HandleFunc(upstream.PathLogin, func(writer http.ResponseWriter, request *http.Request) {
		// The portal signals success by redirecting to the landing page whose
		// body does not repeat the marker
		http.Redirect(writer, request, upstream.PathMain, http.StatusFound)
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"sessionId":"`+sid+`","username":"student","password":"secret","captcha":"AB12"}`)))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, true, payload["ok"])
}

func TestQueryEndpoints(t *testing.T) {
	stub := newStubUpstream(t)
	stub.mux.HandleFunc(upstream.PathExamQuery, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Write([]byte("<html>exam query form</html>"))
	})
	stub.mux.HandleFunc(upstream.PathGradeQuery, func(writer http.ResponseWriter, _ *http.Request) {
		writer.Write([]byte("<html>grade query form</html>"))
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	t.Run("exam query", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/xsks/query?sid="+sid, nil))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "<html>exam query form</html>", recorder.Body.String())
		require.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
	})

	t.Run("grade query", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/kscj/query?sid="+sid, nil))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "<html>grade query form</html>", recorder.Body.String())
	})
}

func TestEndpointDaySchedule(t *testing.T) {
	stub := newStubUpstream(t)
	stub.mux.HandleFunc(upstream.PathSchedule, func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, request.ParseForm())
		require.Equal(t, "2026-01-05", request.PostForm.Get("rq"))
		writer.Write([]byte("<table>kb</table>"))
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	t.Run("missing session id takes precedence", func(t *testing.T) {
		before := stub.count()
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/kb/day", strings.NewReader(`{}`)))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing sessionId", errorMessage(t, recorder))
		require.Equal(t, before, stub.count())
	})

	t.Run("missing rq performs no upstream call", func(t *testing.T) {
		before := stub.count()
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/kb/day",
			strings.NewReader(`{"sessionId":"`+sid+`"}`)))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing rq", errorMessage(t, recorder))
		require.Equal(t, before, stub.count())
	})

	t.Run("relays the schedule", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/kb/day",
			strings.NewReader(`{"sessionId":"`+sid+`","rq":"2026-01-05"}`)))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "<table>kb</table>", recorder.Body.String())
	})

	t.Run("session id via header fallback", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/kb/day", strings.NewReader(`{"rq":"2026-01-05"}`))
		request.Header.Set("X-Session-Id", sid)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestEndpointExamList(t *testing.T) {
	stub := newStubUpstream(t)
	stub.mux.HandleFunc(upstream.PathExamList, func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, request.ParseForm())
		require.Equal(t, "2025-2026-1", request.PostForm.Get("xnxqid"))
		for _, placeholder := range []string{"xqlbmc", "sxxnxq", "dqxnxq", "ckbz"} {
			require.Contains(t, request.PostForm, placeholder)
		}
		writer.Write([]byte("<table>exams</table>"))
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	t.Run("missing session id takes precedence", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/xsks/list", strings.NewReader(`{}`)))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing sessionId", errorMessage(t, recorder))
	})

	t.Run("missing xnxqid", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/xsks/list",
			strings.NewReader(`{"sessionId":"`+sid+`"}`)))
		require.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Equal(t, "Missing xnxqid", errorMessage(t, recorder))
	})

	t.Run("relays the exam list", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/xsks/list",
			strings.NewReader(`{"sessionId":"`+sid+`","xnxqid":"2025-2026-1","xqlb":"1"}`)))
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "<table>exams</table>", recorder.Body.String())
	})
}

func TestEndpointGradeList(t *testing.T) {
	stub := newStubUpstream(t)
	stub.mux.HandleFunc(upstream.PathGradeList, func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, request.ParseForm())
		require.Equal(t, "2025-2026-1", request.PostForm.Get("kksj"))
		writer.Write([]byte("<table>grades</table>"))
	})
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	// All filter fields besides the session id are optional
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/kscj/list",
		strings.NewReader(`{"sessionId":"`+sid+`","kksj":"2025-2026-1"}`)))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "<table>grades</table>", recorder.Body.String())
}

func TestUpstreamFailureReturns502(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)
	sid := createSession(t, handler)

	// Take the upstream down after the session exists
	stub.server.CloseClientConnections()
	stub.server.Close()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/captcha?sid="+sid, nil))
	require.Equal(t, http.StatusBadGateway, recorder.Code)
	require.Equal(t, "Captcha fetch failed", errorMessage(t, recorder))
}

func TestUnknownPath(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, "Not found", errorMessage(t, recorder))
	require.Equal(t, 0, stub.count())
}

func TestOptionsProbe(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodOptions, "/login", nil))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, 0, stub.count())
}

func TestCORSPreflight(t *testing.T) {
	stub := newStubUpstream(t)
	handler := newTestHandler(t, stub.server.URL, 15*time.Minute)

	request := httptest.NewRequest(http.MethodOptions, "/login", nil)
	request.Header.Set("Origin", "http://localhost:5173")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	require.Equal(t, 0, stub.count())
}
