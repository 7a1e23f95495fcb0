package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

var (
	ErrKeyNotFound     = errors.New("session key not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is a visitor's key/value bag. Values are kept JSON encoded so any
// Store can persist them as they are.
type Session struct {
	ID        string
	values    map[string]json.RawMessage
	modified  bool
	UpdatedAt time.Time
}

func New(id string) *Session {
	return &Session{
		ID:     id,
		values: make(map[string]json.RawMessage),
	}
}

// NewID returns a random session id.
func NewID() string {
	return uuid.New().String()
}

func (s *Session) Contains(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Get decodes the value stored under key into dst.
func (s *Session) Get(key string, dst any) error {
	raw, ok := s.values[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode session value %q: %w", key, err)
	}
	return nil
}

func (s *Session) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode session value %q: %w", key, err)
	}
	s.values[key] = raw
	return nil
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// MarkModified flags the session to be saved at the end of the request.
func (s *Session) MarkModified() {
	s.modified = true
}

func (s *Session) Modified() bool {
	return s.modified
}

// Clone returns a deep copy with the modified flag cleared.
func (s *Session) Clone() *Session {
	c := &Session{
		ID:        s.ID,
		values:    make(map[string]json.RawMessage, len(s.values)),
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.values {
		c.values[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// encoded is the stored form of a session.
type encoded struct {
	Values    map[string]json.RawMessage `json:"values"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func (s *Session) marshal() ([]byte, error) {
	data, err := json.Marshal(encoded{Values: s.values, UpdatedAt: s.UpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("marshal session failed: %w", err)
	}
	return data, nil
}

func unmarshal(id string, data []byte) (*Session, error) {
	var e encoded
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	s := New(id)
	maps.Copy(s.values, e.Values)
	s.UpdatedAt = e.UpdatedAt
	return s, nil
}
