package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redactToken renders err with any bot token masked. Transport errors
// embed the request URL, and the URL embeds the token.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// errorKind buckets err for the error_kind log field.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if code := apiStatus(err); code != 0 {
		switch {
		case code == http.StatusTooManyRequests:
			return "flood"
		case code >= 500:
			return "http_5xx"
		case code == http.StatusForbidden:
			return "forbidden"
		case code >= 400:
			return "http_4xx"
		}
	}

	var (
		dnsErr   *net.DNSError
		opErr    *net.OpError
		netErr   net.Error
		alertErr tls.AlertError
	)
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alertErr):
		return "tls"
	case errors.As(err, &opErr):
		return "io"
	}
	return "unknown"
}

// apiStatus extracts the HTTP-level code of a Bot API error, or 0.
func apiStatus(err error) int {
	var (
		apiErr   *tele.Error
		flood    tele.FloodError
		groupErr tele.GroupError
	)
	switch {
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &groupErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		return apiErr.Code
	}
	return 0
}
