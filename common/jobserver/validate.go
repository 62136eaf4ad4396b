package jobserver

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks that a job_server_url is usable: absolute, http(s), and
// pointing at an allowed host when a host allowlist is configured
func ValidateURL(rawURL string, allowedHosts []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return fmt.Errorf("url has no host")
	}

	if len(allowedHosts) == 0 {
		return nil
	}
	for _, allowed := range allowedHosts {
		if hostname == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not an allowed job server host", hostname)
}
