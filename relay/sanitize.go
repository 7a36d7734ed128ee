package main

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Chat bodies and names are plain text; anything that parses as HTML
// is stripped before the message is republished.
var textPolicy = bluemonday.StrictPolicy()

const maxNameLen = 24

// sanitizeName strips markup from a display name and bounds its
// length. An empty result is left for Normalize to default.
func sanitizeName(name string) string {
	name = strings.TrimSpace(textPolicy.Sanitize(html.UnescapeString(name)))
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// sanitizeBody strips markup from a message body.
func sanitizeBody(body string) string {
	return strings.TrimSpace(textPolicy.Sanitize(html.UnescapeString(body)))
}
