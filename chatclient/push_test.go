package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePushPayloadComplete(t *testing.T) {
	n := ParsePushPayload([]byte(`{"notification":{"title":"Hey","body":"alice: hi","icon":"/a.png","url":"/rooms/general"}}`))
	require.Equal(t, Notification{Title: "Hey", Body: "alice: hi", Icon: "/a.png", URL: "/rooms/general"}, n)
}

func TestParsePushPayloadPartialFieldsDefault(t *testing.T) {
	n := ParsePushPayload([]byte(`{"notification":{"title":"Hey"}}`))
	require.Equal(t, "Hey", n.Title)
	require.Equal(t, DefaultPushBody, n.Body)
	require.Equal(t, DefaultPushIcon, n.Icon)
	require.Equal(t, DefaultPushURL, n.URL)
}

func TestParsePushPayloadMissingNotification(t *testing.T) {
	n := ParsePushPayload([]byte(`{}`))
	require.Equal(t, DefaultPushTitle, n.Title)
}

func TestParsePushPayloadMalformedStillShowsDefault(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("{oops"), []byte(`"just a string"`)} {
		n := ParsePushPayload(raw)
		require.Equal(t, DefaultPushTitle, n.Title)
		require.Equal(t, DefaultPushBody, n.Body)
	}
}
