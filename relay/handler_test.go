package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relay-chat/chatclient"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer("test", newHub(nil)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendEndpointReturnsCanonicalMessage(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{
		ClientID:  "c1",
		UserID:    "u1",
		Username:  "alice",
		Message:   "  hi  ",
		Timestamp: 1000,
		Room:      "general",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m chatclient.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.NotEmpty(t, m.ID)
	require.Equal(t, "c1", m.ClientID)
	require.Equal(t, "alice", m.Username)
	require.Equal(t, "hi", m.Body)
	require.Equal(t, chatclient.Millis(1000), m.Timestamp)
	require.False(t, m.Local)
}

func TestSendEndpointNormalizesMissingFields(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/messages", map[string]any{
		"message": "hi",
		"room":    "general",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m chatclient.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.Equal(t, chatclient.AnonymousName, m.Username)
	require.NotZero(t, m.Timestamp)
}

func TestSendEndpointRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	for name, body := range map[string]any{
		"empty message": map[string]any{"room": "general", "message": "   "},
		"missing room":  map[string]any{"message": "hi"},
	} {
		resp := postJSON(t, srv.URL+"/api/messages", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}

	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendEndpointAcceptsStringTimestamp(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/messages", map[string]any{
		"message":   "hi",
		"room":      "general",
		"timestamp": "1700000000123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m chatclient.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.Equal(t, chatclient.Millis(1700000000123), m.Timestamp)
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{Message: "hi", Room: "general", Username: "alice"})
	postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{Message: "again", Room: "general", Username: "alice", Timestamp: 999999})

	resp, err := http.Get(srv.URL + "/api/rooms/general/messages")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []chatclient.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	require.Equal(t, "hi", msgs[0].Body)

	resp2, err := http.Get(srv.URL + "/api/rooms/general/messages?limit=1")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, "again", msgs[0].Body)
}

func dialChannel(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws?channel=" + chatclient.ChannelPrefix + room
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEventOfType(t *testing.T, conn *websocket.Conn, typ string) chatclient.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev chatclient.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == typ {
			return ev
		}
	}
}

func TestWebSocketDeliversPublishedMessages(t *testing.T) {
	srv := newTestServer(t)
	conn := dialChannel(t, srv, "general")

	resp := postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{
		ClientID: "c1", Username: "alice", Message: "hi", Room: "general", Timestamp: 1000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := readEventOfType(t, conn, chatclient.EventMessage)
	var m chatclient.Message
	require.NoError(t, json.Unmarshal(ev.Data, &m))
	require.Equal(t, "c1", m.ClientID)
	require.Equal(t, "hi", m.Body)
}

func TestWebSocketAcceptsBareRoomParam(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=general"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	readEventOfType(t, conn, chatclient.EventPresence)
}

func TestWebSocketRejectsMissingChannel(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPushEndpointBroadcastsPayload(t *testing.T) {
	srv := newTestServer(t)
	conn := dialChannel(t, srv, "general")

	resp := postJSON(t, srv.URL+"/api/push", map[string]any{
		"room":         "general",
		"notification": map[string]any{"title": "Hey", "url": "/rooms/general"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := readEventOfType(t, conn, chatclient.EventPush)
	n := chatclient.ParsePushPayload(ev.Data)
	require.Equal(t, "Hey", n.Title)
	require.Equal(t, chatclient.DefaultPushBody, n.Body)
	require.Equal(t, "/rooms/general", n.URL)
}

// End-to-end: a real Session against a real relay.

func TestSessionEndToEndSendAndEcho(t *testing.T) {
	srv := newTestServer(t)

	sess := chatclient.NewSession(srv.URL)
	defer func() { _ = sess.Close() }()
	require.NoError(t, sess.SetUsername("alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Join(ctx, "general"))

	require.NoError(t, sess.Send(ctx, "general", "hi"))

	// Both the HTTP response and the channel echo have to collapse
	// into one confirmed entry.
	require.Eventually(t, func() bool {
		list := sess.Messages("general")
		return len(list) == 1 && !list[0].Local && list[0].ID != ""
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond) // let any stray echo land
	require.Len(t, sess.Messages("general"), 1)
}

func TestSessionReceivesPeerMessages(t *testing.T) {
	srv := newTestServer(t)

	sess := chatclient.NewSession(srv.URL)
	defer func() { _ = sess.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Join(ctx, "general"))

	postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{
		ClientID: "peer-c1", Username: "bob", Message: "hello there", Room: "general", Timestamp: 1000,
	})

	require.Eventually(t, func() bool {
		list := sess.Messages("general")
		return len(list) == 1 && list[0].Username == "bob"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSessionRoomSwitchDropsStaleEvents(t *testing.T) {
	srv := newTestServer(t)

	sess := chatclient.NewSession(srv.URL)
	defer func() { _ = sess.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sess.Join(ctx, "alpha"))
	require.NoError(t, sess.Send(ctx, "alpha", "in alpha"))
	require.NoError(t, sess.Join(ctx, "beta"))

	// Traffic on the abandoned room must not bleed into beta's cache.
	postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{
		ClientID: "c-late", Username: "bob", Message: "late alpha traffic", Room: "alpha", Timestamp: 2000,
	})
	time.Sleep(300 * time.Millisecond)

	require.Empty(t, sess.Messages("beta"))
	alpha := sess.Messages("alpha")
	require.Len(t, alpha, 1)
	require.Equal(t, "in alpha", alpha[0].Body)
	require.Equal(t, "beta", sess.Room())
}

func TestSessionBacklogReplayOnJoin(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/messages", chatclient.SendRequest{
		ClientID: "c1", Username: "bob", Message: "before join", Room: "general", Timestamp: 1000,
	})

	sess := chatclient.NewSession(srv.URL)
	defer func() { _ = sess.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Join(ctx, "general"))

	require.Eventually(t, func() bool {
		list := sess.Messages("general")
		return len(list) == 1 && list[0].Body == "before join"
	}, 3*time.Second, 20*time.Millisecond)
}
