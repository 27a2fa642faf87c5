package openairealtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketSession is a WebSocket-based realtime session.
type WebSocketSession struct {
	conn      *websocket.Conn
	model     string
	sessionID string
	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once
	mu        sync.Mutex // guards conn writes and sessionID
}

type eventOrError struct {
	event *ServerEvent
	err   error
}

func newWebSocketSession(conn *websocket.Conn, model string) *WebSocketSession {
	s := &WebSocketSession{
		conn:     conn,
		model:    model,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}
	go s.readLoop()
	return s
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// UpdateSession updates the session configuration.
func (s *WebSocketSession) UpdateSession(config *SessionConfig) error {
	return s.sendEvent(&clientEvent{
		Type:    EventTypeSessionUpdate,
		Session: config,
	})
}

// AddUserAudio adds a user audio message to the conversation.
func (s *WebSocketSession) AddUserAudio(audio []byte) error {
	return s.sendEvent(&clientEvent{
		Type: EventTypeConversationItemCreate,
		Item: &ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ContentPart{{
				Type:  "input_audio",
				Audio: base64.StdEncoding.EncodeToString(audio),
			}},
		},
	})
}

// CreateResponse requests the model to generate a response.
func (s *WebSocketSession) CreateResponse(opts *ResponseCreateOptions) error {
	return s.sendEvent(&clientEvent{
		Type:     EventTypeResponseCreate,
		Response: opts,
	})
}

// Events returns an iterator over server events.
func (s *WebSocketSession) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
				var de *DecodeError
				if item.err != nil && !errors.As(item.err, &de) {
					return
				}
			}
		}
	}
}

// Close closes the session.
func (s *WebSocketSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

// SessionID returns the session ID.
func (s *WebSocketSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Model returns the model the session was opened with.
func (s *WebSocketSession) Model() string {
	return s.model
}

func (s *WebSocketSession) sendEvent(event *clientEvent) error {
	event.EventID = generateEventID()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("openai-realtime: encode %s: %w", event.Type, err)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("sending event", "type", event.Type, "len", len(data), "content", truncate(data, 500))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("openai-realtime: send %s: %w", event.Type, err)
	}
	return nil
}

func (s *WebSocketSession) readLoop() {
	defer close(s.eventsCh)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
				// Closed locally; not a transport failure.
				return
			default:
			}
			select {
			case <-s.closeCh:
			case s.eventsCh <- eventOrError{err: fmt.Errorf("openai-realtime: read: %w", err)}:
			}
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("received message", "len", len(message), "content", truncate(message, 1000))
		}

		event, err := parseEvent(message)
		item := eventOrError{event: event, err: err}
		if err == nil && event.Type == EventTypeSessionCreated && event.Session != nil {
			s.mu.Lock()
			s.sessionID = event.Session.ID
			s.mu.Unlock()
		}

		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- item:
		}
	}
}

// parseEvent decodes a raw JSON frame. Audio deltas are base64-decoded
// into Audio.
func parseEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		de := &DecodeError{Raw: message, Err: err}
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &head) == nil {
			de.Type = head.Type
		}
		return nil, de
	}
	if event.Type == "" {
		return nil, &DecodeError{Raw: message, Err: errors.New("missing type")}
	}
	event.Raw = message

	if event.Type == EventTypeResponseAudioDelta && event.Delta != "" {
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			return nil, &DecodeError{Type: event.Type, Raw: message, Err: err}
		}
		event.Audio = audio
	}
	return &event, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Session = (*WebSocketSession)(nil)
