package useragent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	ua "github.com/mssola/useragent"
)

// ErrUnrecognized is returned when a user agent maps to no known browser.
var ErrUnrecognized = errors.New("unrecognized user agent")

// Browser is a parsed user agent. Version is the full observed version, not
// yet snapped to a catalog release.
type Browser struct {
	ID      string
	Name    string
	Version string
	OS      string
	Mobile  bool
}

// derivedTokens are checked before general parsing because these browsers
// also carry a Chrome token.
var derivedTokens = []struct {
	token   string
	desktop string
	mobile  string
}{
	{"SamsungBrowser/", "samsunginternet_android", "samsunginternet_android"},
	{"EdgA/", "edge", "edge"},
	{"Edg/", "edge", "edge"},
	{"OPR/", "opera", "opera_android"},
}

// canonical maps a parsed browser name to its desktop and mobile ids.
var canonical = map[string][2]string{
	"Chrome":            {"chrome", "chrome_android"},
	"Chromium":          {"chrome", "chrome_android"},
	"Edge":              {"edge", "edge"},
	"Firefox":           {"firefox", "firefox_android"},
	"Internet Explorer": {"ie", "ie"},
	"Opera":             {"opera", "opera_android"},
	"Safari":            {"safari", "safari_ios"},
}

var webViewRe = regexp.MustCompile(`;\s*wv\)`)

// Parse maps a user agent string to a canonical browser id and version.
func Parse(s string) (Browser, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Browser{}, fmt.Errorf("%w: empty", ErrUnrecognized)
	}

	parsed := ua.New(s)
	if parsed.Bot() {
		return Browser{}, fmt.Errorf("%w: bot %q", ErrUnrecognized, s)
	}
	b := Browser{OS: parsed.OS(), Mobile: isMobile(parsed)}

	for _, d := range derivedTokens {
		if v := tokenVersion(s, d.token); v != "" {
			b.ID, b.Version = pick(d.desktop, d.mobile, b.Mobile), v
			b.Name = strings.TrimSuffix(d.token, "/")
			return b, nil
		}
	}

	name, version := parsed.Browser()
	if name == "Chrome" && b.Mobile && webViewRe.MatchString(s) {
		b.ID, b.Name, b.Version = "webview_android", "WebView", version
		return b, nil
	}

	ids, ok := canonical[name]
	if !ok || version == "" {
		return Browser{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	b.ID, b.Name, b.Version = pick(ids[0], ids[1], b.Mobile), name, version
	return b, nil
}

func isMobile(p *ua.UserAgent) bool {
	if p.Mobile() {
		return true
	}
	switch p.Platform() {
	case "iPhone", "iPad", "iPod":
		return true
	}
	return strings.Contains(p.OS(), "Android")
}

func pick(desktop, mobile string, isMobile bool) string {
	if isMobile {
		return mobile
	}
	return desktop
}

// tokenVersion returns the version after token, e.g. "91.0.864.59" for
// "Edg/" in "... Edg/91.0.864.59".
func tokenVersion(s, token string) string {
	i := strings.Index(s, token)
	if i < 0 {
		return ""
	}
	rest := s[i+len(token):]
	if j := strings.IndexAny(rest, " ;)"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
