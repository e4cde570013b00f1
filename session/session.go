package session

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the values of one client session between requests.
type Session struct {
	// token sent to the client; the store hashes it before use as a key
	id string

	// token replaced by Renew, destroyed on save
	previousID string

	createdAt time.Time
	values    map[string]any

	isDestroyed bool
	isModified  bool
}

func newSession() *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		values:    make(map[string]any),
	}
}

// ID returns the session token.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns the time the session was first created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Renew issues a new token for the session, keeping its values. The old
// token is destroyed when the session is saved. Call it after a privilege
// change such as login.
func (s *Session) Renew() {
	if s.previousID == "" {
		s.previousID = s.id
	}
	s.id = uuid.NewString()
	s.isModified = true
}

// Destroy clears the session and removes it from the store on save.
func (s *Session) Destroy() {
	s.Clear()
	s.isDestroyed = true
}

// Set adds or updates a value in the session.
func (s *Session) Set(key string, value any) {
	s.isModified = true
	s.values[key] = value
}

// SetWeak adds or updates a value without marking the session as modified,
// for values that are fine to lose.
func (s *Session) SetWeak(key string, value any) {
	s.values[key] = value
}

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) any {
	return s.values[key]
}

// Delete removes a value from the session.
func (s *Session) Delete(key string) {
	s.isModified = true
	delete(s.values, key)
}

// Clear removes all values from the session.
func (s *Session) Clear() {
	s.isModified = true
	s.values = make(map[string]any)
}

// Value returns the value stored under key as a T. It returns the zero
// value if the key is missing or holds another type.
func Value[T any](s *Session, key string) T {
	v, _ := s.values[key].(T)
	return v
}
