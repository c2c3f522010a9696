package screenshot

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for input that cannot be turned into an http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// NormalizeURL trims raw, adds https:// when no scheme is present and checks
// that the result is an absolute http or https URL with a plausible host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(s, "://") {
			return "", fmt.Errorf("%w: unsupported scheme", ErrInvalidURL)
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	// Bare words ("localhost" aside) are not reachable sites.
	if net.ParseIP(host) == nil && host != "localhost" && !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: host %q has no domain", ErrInvalidURL, host)
	}
	return u.String(), nil
}
