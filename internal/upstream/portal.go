package upstream

import (
	"encoding/base64"
	"net/url"
)

// Portal endpoint paths, relative to the configured base URL
const (
	PathMain       = "/jsxsd/framework/xsMain.jsp"
	PathCaptcha    = "/jsxsd/verifycode.servlet"
	PathLogin      = "/jsxsd/xk/LoginToXkLdap"
	PathExamQuery  = "/jsxsd/xsks/xsksap_query"
	PathExamList   = "/jsxsd/xsks/xsksap_list"
	PathSchedule   = "/jsxsd/framework/main_index_loadkb.jsp"
	PathGradeQuery = "/jsxsd/kscj/cjcx_query"
	PathGradeList  = "/jsxsd/kscj/cjcx_list"
)

// credentialSeparator joins the encoded username and password halves
const credentialSeparator = "%%%"

// EncodeCredentials builds the portal's custom credential encoding:
// base64(username) + '%%%' + base64(password)
func EncodeCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username)) +
		credentialSeparator +
		base64.StdEncoding.EncodeToString([]byte(password))
}

// LoginForm builds the form fields the portal's login endpoint expects.
// The plain account fields are sent empty; the portal only reads the
// 'encoded' field and the CAPTCHA text.
func LoginForm(username, password, captcha string) url.Values {
	return url.Values{
		"userAccount":  {""},
		"userPassword": {""},
		"RANDOMCODE":   {captcha},
		"encoded":      {EncodeCredentials(username, password)},
	}
}
