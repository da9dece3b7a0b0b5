package solana

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// RedactURL drops the query string and user info, which often carry a
// provider API key.
func RedactURL(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "invalid"
	}
	parsed.RawQuery = ""
	parsed.User = nil
	return parsed.String()
}

// redactURLs rewrites every URL embedded in msg with RedactURL. solana-go
// puts the full endpoint URL in its error text.
func redactURLs(msg string) string {
	return urlPattern.ReplaceAllStringFunc(msg, func(raw string) string {
		trimmed := strings.TrimRight(raw, ":,;.)")
		redacted := RedactURL(trimmed)
		if redacted == "invalid" {
			return "<redacted-url>"
		}
		return redacted + raw[len(trimmed):]
	})
}
