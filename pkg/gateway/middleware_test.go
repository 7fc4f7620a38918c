package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/domain"
)

func TestClientAddress(t *testing.T) {
	proxies := map[string]struct{}{"10.0.0.1": {}}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr host", "198.51.100.7:54321", "", "198.51.100.7"},
		{"remote addr without port", "198.51.100.7", "", "198.51.100.7"},
		{"forwarded ignored from untrusted peer", "198.51.100.7:54321", "203.0.113.50", "198.51.100.7"},
		{"forwarded single hop via proxy", "10.0.0.1:443", "203.0.113.50", "203.0.113.50"},
		{"forwarded takes first hop via proxy", "10.0.0.1:443", "203.0.113.50, 10.0.0.2, 10.0.0.3", "203.0.113.50"},
		{"forwarded with spaces via proxy", "10.0.0.1:443", "  203.0.113.50 , 10.0.0.2", "203.0.113.50"},
		{"proxy without forwarded falls back", "10.0.0.1:443", "", "10.0.0.1"},
		{"ipv6 remote", "[2001:db8::1]:443", "", "2001:db8::1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, clientAddress(req, proxies))
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Run("valid header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")

		token, err := bearerToken(req)
		require.NoError(t, err)
		assert.Equal(t, "abc.def.ghi", token)
	})

	t.Run("case-insensitive scheme", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "bearer abc")

		token, err := bearerToken(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"no token", "Bearer "},
		{"bare token", "abc.def.ghi"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			_, err := bearerToken(req)
			require.ErrorIs(t, err, domain.ErrAuthenticationFailed)
		})
	}
}

func TestEndpointName(t *testing.T) {
	assert.Equal(t, "ask", endpointName("/v1/ask"))
	assert.Equal(t, "prompts", endpointName("/v1/prompts"))
	assert.Equal(t, "prompt", endpointName("/v1/prompts/greeting"))
	assert.Equal(t, "root", endpointName("/"))
	assert.Equal(t, "unknown", endpointName("/v2/surprise"))
}
