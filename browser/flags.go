package browser

import "strings"

// DefaultChromeFlags is the baseline flag set used when no explicit flags
// are configured.
// See https://peter.sh/experiments/chromium-command-line-switches/
var DefaultChromeFlags = []string{
	"--disable-infobars",
	"--window-position=0,0",
	"--ignore-certificate-errors",
	"--ignore-certificate-errors-spki-list",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-accelerated-2d-canvas",
	"--disable-gpu",
	"--window-size=1920,1040",
	"--start-fullscreen",
	"--hide-scrollbars",
	"--disable-notifications",
}

// ResolveFlags computes the Chrome command line switches for a session.
// A non-empty explicit list replaces the baseline entirely. The user agent
// and proxy switches are appended when set.
func ResolveFlags(explicit []string, userAgent, proxy string) []string {
	base := DefaultChromeFlags
	if len(explicit) > 0 {
		base = explicit
	}
	out := make([]string, 0, len(base)+2)
	out = append(out, base...)
	if userAgent != "" {
		out = append(out, "--user-agent="+userAgent)
	}
	if proxy != "" {
		out = append(out, "--proxy-server="+proxy)
	}
	return out
}

// splitFlag turns "--name=value" into ("name", "value"). Flags without a
// value return an empty value.
func splitFlag(flag string) (name, value string) {
	flag = strings.TrimLeft(strings.TrimSpace(flag), "-")
	name, value, _ = strings.Cut(flag, "=")
	return name, value
}
