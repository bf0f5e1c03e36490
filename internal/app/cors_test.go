package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchOrigin(t *testing.T) {
	cases := []struct {
		pattern, origin string
		want            bool
	}{
		{"reader.example.com", "https://reader.example.com", true},
		{"*.example.com", "https://app.example.com", true},
		{"*.example.com", "https://example.org", false},
		{"localhost:*", "http://localhost:5173", true},
		{"localhost:*", "http://otherhost:5173", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchOrigin(tc.pattern, originHost(tc.origin)), tc.pattern+" "+tc.origin)
	}
}
