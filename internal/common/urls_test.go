package common

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "lowercases scheme and host",
			input:    "HTTPS://Example.COM/Path",
			expected: "https://example.com/Path",
		},
		{
			name:     "strips fragment",
			input:    "https://example.com/page#section-2",
			expected: "https://example.com/page",
		},
		{
			name:     "adds root path",
			input:    "https://example.com",
			expected: "https://example.com/",
		},
		{
			name:     "preserves query",
			input:    "https://example.com/search?q=go&page=2",
			expected: "https://example.com/search?q=go&page=2",
		},
		{
			name:     "trims surrounding whitespace",
			input:    "  https://example.com/docs  ",
			expected: "https://example.com/docs",
		},
		{
			name:    "rejects empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "rejects non-http scheme",
			input:   "ftp://example.com/file",
			wantErr: true,
		},
		{
			name:    "rejects missing host",
			input:   "https:///path-only",
			wantErr: true,
		},
		{
			name:    "rejects relative path",
			input:   "/about",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	once, err := NormalizeURL("HTTP://Example.com/a/b?x=1#frag")
	require.NoError(t, err)

	twice, err := NormalizeURL(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestSameHost(t *testing.T) {
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	assert.True(t, SameHost(parse("https://example.com/a"), parse("https://example.com/b")))
	assert.True(t, SameHost(parse("https://Example.COM"), parse("https://example.com")))
	assert.True(t, SameHost(parse("https://example.com:8080/a"), parse("https://example.com/b")))
	assert.False(t, SameHost(parse("https://example.com"), parse("https://sub.example.com")))
	assert.False(t, SameHost(parse("https://example.com"), parse("https://example.org")))
}

func TestIsTestHost(t *testing.T) {
	assert.True(t, IsTestHost("localhost"))
	assert.True(t, IsTestHost("127.0.0.1"))
	assert.True(t, IsTestHost("demo.localhost"))
	assert.False(t, IsTestHost("example.com"))
	assert.False(t, IsTestHost("localhost.example.com"))
}
