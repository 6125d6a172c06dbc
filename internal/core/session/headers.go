package session

import "net/http"

// HeaderProfile represents a complete set of HTTP headers for a device/browser combination
type HeaderProfile struct {
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	SecFetchDest    string
	SecFetchMode    string
	SecFetchUser    string
	SecChUa         string
	SecChUaMobile   string
	SecChUaPlatform string
}

// DesktopChrome is the fixed profile every run presents. Accept-Encoding is
// left to net/http, which only decompresses bodies it negotiated itself.
var DesktopChrome = HeaderProfile{
	UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	AcceptLanguage:  "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
	SecFetchDest:    "document",
	SecFetchMode:    "navigate",
	SecFetchUser:    "?1",
	SecChUa:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
	SecChUaMobile:   "?0",
	SecChUaPlatform: `"Windows"`,
}

// FetchSite is the Sec-Fetch-Site value: "none" for the first navigation of
// a session, "same-origin" for everything that follows from the site itself.
type FetchSite string

const (
	FetchSiteNone       FetchSite = "none"
	FetchSiteSameOrigin FetchSite = "same-origin"
)

// Headers builds the header map. Browser contexts take it as extra headers,
// the HTTP backend copies it onto every request.
func (p HeaderProfile) Headers(site FetchSite) map[string]string {
	headers := map[string]string{
		"User-Agent":                p.UserAgent,
		"Accept":                    p.Accept,
		"Accept-Language":           p.AcceptLanguage,
		"Upgrade-Insecure-Requests": "1",
	}
	if p.SecFetchDest != "" {
		headers["Sec-Fetch-Dest"] = p.SecFetchDest
		headers["Sec-Fetch-Mode"] = p.SecFetchMode
		headers["Sec-Fetch-Site"] = string(site)
		if p.SecFetchUser != "" {
			headers["Sec-Fetch-User"] = p.SecFetchUser
		}
	}
	if p.SecChUa != "" {
		headers["Sec-Ch-Ua"] = p.SecChUa
		headers["Sec-Ch-Ua-Mobile"] = p.SecChUaMobile
		headers["Sec-Ch-Ua-Platform"] = p.SecChUaPlatform
	}
	return headers
}

// Apply sets the profile on req, keeping any header the caller already set.
func (p HeaderProfile) Apply(req *http.Request, site FetchSite) {
	for k, v := range p.Headers(site) {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}

// BrowserHeaders is the subset handed to a real browser. The engine sends its
// own client hints and fetch metadata.
func (p HeaderProfile) BrowserHeaders() map[string]string {
	return map[string]string{
		"Accept-Language": p.AcceptLanguage,
	}
}
