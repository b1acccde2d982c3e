package store

import (
	"regexp"
	"strings"
)

var scriptTag = regexp.MustCompile(`(?i)<script[\s\S]*?>[\s\S]*?</script>`)

// SanitizeContent strips executable markup before persistence and trims the
// result. An empty return means the submission was nothing but markup.
func SanitizeContent(content string) string {
	return strings.TrimSpace(scriptTag.ReplaceAllString(content, ""))
}
