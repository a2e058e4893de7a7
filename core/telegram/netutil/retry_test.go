package netutil

import (
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	dial := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	dns := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{Name: "api.telegram.org", Err: "no such host"}}
	read := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}}
	reset := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}}

	cases := []struct {
		name    string
		err     error
		retry   bool
		notSent bool
	}{
		{"nil", nil, false, false},
		{"plain", errors.New("telegram: bad request (400)"), false, false},
		{"dial", dial, true, true},
		{"dns", dns, true, true},
		{"read timeout", read, true, false},
		{"reset", reset, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retry, ShouldRetry(tc.err))
			assert.Equal(t, tc.notSent, NotSent(tc.err))
		})
	}
}
