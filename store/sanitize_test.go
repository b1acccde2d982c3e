package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"script stripped", "hi <script>alert(1)</script>there", "hi there"},
		{"case insensitive", "<SCRIPT>x</SCRIPT>ok", "ok"},
		{"attributes and newlines", "a<script src=\"x\"\ntype=\"y\">\nvar z\n</script>b", "ab"},
		{"only markup becomes empty", "<script>boom()</script>", ""},
		{"whitespace trimmed", "  spaced out  ", "spaced out"},
		{"markup lookalikes survive", "use <b>bold</b> and 1 < 2", "use <b>bold</b> and 1 < 2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeContent(tc.in))
		})
	}
}
