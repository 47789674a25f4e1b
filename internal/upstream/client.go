package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

// userAgent is the fixed browser identification sent with every upstream request.
// The portal serves a degraded page to clients it does not recognize as a browser.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// maxRedirects caps the redirect chain length of a single exchange
const maxRedirects = 10

// Hop represents one intermediate response of a followed redirect chain
type Hop struct {
	URL        string
	StatusCode int
	Location   string
}

// Response represents a decoded upstream HTTP response
type Response struct {
	StatusCode  int
	Header      http.Header
	Bytes       []byte
	Body        string
	ContentType string
	FinalURL    string
	History     []Hop
}

// Client wraps a single cookie-bearing HTTP conversation with the upstream portal.
// The cookie jar is exclusively owned by one session and must never be shared.
type Client struct {
	baseURL   string
	jar       http.CookieJar
	timeout   time.Duration
	transport http.RoundTripper
}

// New creates a new upstream client with a fresh cookie jar
func New(baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		jar:     jar,
		timeout: timeout,
	}, nil
}

// Get performs a GET request against the given portal path
func (client *Client) Get(ctx context.Context, path string) (*Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return client.do(request)
}

// PostForm performs a form-encoded POST request against the given portal path
func (client *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return client.do(request)
}

// do performs the request, following redirects while recording every intermediate hop.
// The redirect history is collected per call so that concurrent requests on the same
// session never share state beyond the cookie jar (which is safe for concurrent use).
func (client *Client) do(request *http.Request) (*Response, error) {
	request.Header.Set("User-Agent", userAgent)

	var history []Hop
	httpClient := &http.Client{
		Jar:       client.jar,
		Timeout:   client.timeout,
		Transport: client.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.Response != nil {
				history = append(history, Hop{
					URL:        req.Response.Request.URL.String(),
					StatusCode: req.Response.StatusCode,
					Location:   req.Response.Header.Get("Location"),
				})
			}
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	contentType := response.Header.Get("Content-Type")
	return &Response{
		StatusCode:  response.StatusCode,
		Header:      response.Header,
		Bytes:       raw,
		Body:        decodeBody(raw, contentType),
		ContentType: contentType,
		FinalURL:    response.Request.URL.String(),
		History:     history,
	}, nil
}

// decodeBody decodes a response body using the declared or content-sniffed character
// encoding. The portal serves its pages in a legacy Chinese encoding, so assuming
// UTF-8 would mangle every non-ASCII payload.
func decodeBody(raw []byte, contentType string) string {
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
