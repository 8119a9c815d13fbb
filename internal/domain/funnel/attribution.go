package funnel

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Browser cookies set by the ad pixel.
const (
	CookieFBP = "_fbp"
	CookieFBC = "_fbc"
)

// Attribution is the campaign and click identity of a visit.
type Attribution struct {
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	FBP         string `json:"fbp,omitempty"`
	FBC         string `json:"fbc,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`
}

// CaptureAttribution reads UTM parameters and fbclid from the page URL
// (falling back to the request URL) and the pixel cookies of r.
func CaptureAttribution(r *http.Request, pageURL string) Attribution {
	var query url.Values
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			query = u.Query()
		}
	}
	if len(query) == 0 && r.URL != nil {
		query = r.URL.Query()
	}

	a := Attribution{
		UTMSource:   strings.TrimSpace(query.Get("utm_source")),
		UTMMedium:   strings.TrimSpace(query.Get("utm_medium")),
		UTMCampaign: strings.TrimSpace(query.Get("utm_campaign")),
		FBCLID:      strings.TrimSpace(query.Get("fbclid")),
	}
	if c, err := r.Cookie(CookieFBP); err == nil {
		a.FBP = c.Value
	}
	if c, err := r.Cookie(CookieFBC); err == nil {
		a.FBC = c.Value
	}
	return a
}

// Or returns a with every empty field taken from fallback.
func (a Attribution) Or(fallback Attribution) Attribution {
	pick := func(v, alt string) string {
		if v != "" {
			return v
		}
		return alt
	}
	return Attribution{
		UTMSource:   pick(a.UTMSource, fallback.UTMSource),
		UTMMedium:   pick(a.UTMMedium, fallback.UTMMedium),
		UTMCampaign: pick(a.UTMCampaign, fallback.UTMCampaign),
		FBP:         pick(a.FBP, fallback.FBP),
		FBC:         pick(a.FBC, fallback.FBC),
		FBCLID:      pick(a.FBCLID, fallback.FBCLID),
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of the connection address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
