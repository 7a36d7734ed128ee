package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyMessage is returned when the input is empty or whitespace
// only; nothing is sent and no optimistic entry is created.
var ErrEmptyMessage = errors.New("chatclient: empty message")

// SendRequest is the body POSTed to the relay's send endpoint.
type SendRequest struct {
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp Millis `json:"timestamp"`
	Room      string `json:"room"`
}

// Send submits a message to a room. The optimistic entry lands in the
// cache before any network traffic, so the sender sees it
// immediately; the relay's response (or its channel echo, whichever
// arrives first) later confirms it via the client-id match. A failed
// request is logged and otherwise swallowed: the optimistic entry
// stays flagged Local and Send still returns nil, matching the
// no-retry, no-rollback policy.
func (s *Session) Send(ctx context.Context, room, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	optimistic := Message{
		ClientID:  uuid.NewString(),
		UserID:    s.ident.UserID(),
		Username:  s.ident.Username(),
		Body:      text,
		Timestamp: NowMillis(),
		Local:     true,
	}
	s.apply(room, optimistic)

	req := SendRequest{
		ClientID:  optimistic.ClientID,
		UserID:    optimistic.UserID,
		Username:  optimistic.Username,
		Message:   optimistic.Body,
		Timestamp: optimistic.Timestamp,
		Room:      room,
	}
	confirmed, err := s.postMessage(ctx, req)
	if err != nil {
		logSendError(err, room, "send request failed; message stays local")
		return nil
	}
	confirmed.Normalize()
	s.apply(room, confirmed)
	return nil
}

func (s *Session) postMessage(ctx context.Context, req SendRequest) (Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Message{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.relayURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.httpc.Do(httpReq)
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Message{}, fmt.Errorf("send: unexpected status %d", resp.StatusCode)
	}
	var m Message
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("send: decode response: %w", err)
	}
	return m, nil
}

func logSendError(err error, room, msg string) {
	log.Error().Err(err).Str("room", room).Msg("[chat] " + msg)
}
