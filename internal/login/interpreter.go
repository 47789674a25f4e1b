// Package login interprets the portal's login responses.
//
// The portal does not use HTTP status codes to communicate login outcomes.
// Human-readable errors arrive as a script-embedded alert call; success is
// signalled inconsistently, sometimes by the content of the authenticated
// landing page and sometimes only by a redirect hop towards it.
package login

import (
	"regexp"
	"strings"

	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
)

// successMarker names the portal's authenticated landing page
const successMarker = "xsMain.jsp"

// alertPattern captures the first quoted string of an alert('...') or alert("...")
// call. The quoted text may span multiple lines. RE2 has no backreferences, so the
// two quote kinds are separate alternation branches.
var alertPattern = regexp.MustCompile(`(?is)alert\((?:'(.*?)'|"(.*?)")\)`)

// alertUnescaper resolves the backslash escapes the portal embeds in alert text
var alertUnescaper = strings.NewReplacer(
	`\r`, "\r",
	`\n`, "\n",
	`\t`, "\t",
	`\"`, `"`,
	`\'`, `'`,
)

// ExtractAlert extracts the first script-embedded alert message out of a response
// body. The second return value is false if no alert call is present or its
// unescaped, trimmed text is empty.
func ExtractAlert(body string) (string, bool) {
	loc := alertPattern.FindStringSubmatchIndex(body)
	if loc == nil {
		return "", false
	}

	var message string
	if loc[2] >= 0 {
		message = body[loc[2]:loc[3]]
	} else {
		message = body[loc[4]:loc[5]]
	}

	message = strings.TrimSpace(alertUnescaper.Replace(message))
	if message == "" {
		return "", false
	}
	return message, true
}

// IsSuccess reports whether a login response indicates a successful authentication.
// The landing page marker counts wherever it appears: in the response body, in the
// final resolved URL, in the URL of any intermediate redirect hop or in a redirect
// Location header. Any single match is sufficient.
func IsSuccess(response *upstream.Response) bool {
	if strings.Contains(response.Body, successMarker) {
		return true
	}
	if strings.Contains(response.FinalURL, successMarker) {
		return true
	}
	for _, hop := range response.History {
		if strings.Contains(hop.URL, successMarker) || strings.Contains(hop.Location, successMarker) {
			return true
		}
	}
	return false
}
