package chatclient

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Notification is a displayable push notification.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Defaults substituted for absent push payload fields.
const (
	DefaultPushTitle = "New message"
	DefaultPushBody  = "You have a new message"
	DefaultPushIcon  = "/icon.png"
	DefaultPushURL   = "/"
)

// PushPayload is the wire shape of a push event: an optional
// notification object whose fields are all optional.
type PushPayload struct {
	Notification *Notification `json:"notification,omitempty"`
}

// ParsePushPayload decodes a push payload, falling back to the
// default notification on parse failure and to per-field defaults for
// absent fields. It never fails: a broken payload still produces a
// showable notification.
func ParsePushPayload(raw []byte) Notification {
	var p PushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Err(err).Msg("[push] malformed payload; using defaults")
		p = PushPayload{}
	}
	n := Notification{}
	if p.Notification != nil {
		n = *p.Notification
	}
	if n.Title == "" {
		n.Title = DefaultPushTitle
	}
	if n.Body == "" {
		n.Body = DefaultPushBody
	}
	if n.Icon == "" {
		n.Icon = DefaultPushIcon
	}
	if n.URL == "" {
		n.URL = DefaultPushURL
	}
	return n
}
