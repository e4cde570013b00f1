// Package session plugs the tiered store into net/http. A Manager loads the
// session named by the request cookie before the handler runs and saves,
// renews or destroys it before the response is written.
//
// Usage:
//
//	package main
//
//	import (
//	    "fmt"
//	    "net/http"
//	    "time"
//
//	    "github.com/bluescreen10/tieredsession"
//	    "github.com/bluescreen10/tieredsession/memstore"
//	    "github.com/bluescreen10/tieredsession/session"
//	)
//
//	func main() {
//	    store, _ := tieredsession.New(memstore.New())
//	    mgr := session.NewManager(store, session.WithIdleTimeout(15*time.Minute))
//
//	    mux := http.NewServeMux()
//	    mux.Handle("/", mgr.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        sess := mgr.Get(r)
//	        count := session.Value[int](sess, "count") + 1
//	        sess.Set("count", count)
//	        fmt.Fprintf(w, "You have visited %d times\n", count)
//	    })))
//
//	    http.ListenAndServe(":8080", mux)
//	}
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluescreen10/tieredsession"
)

// Store is the subset of *tieredsession.Store used by the Manager.
type Store interface {
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, payload []byte) error
	Destroy(ctx context.Context, id string) error
}

// Ensure the tiered store satisfies Store.
var _ Store = (*tieredsession.Store)(nil)

// responseWriter wraps http.ResponseWriter to intercept writes
// and ensure the session is saved before any headers or body are written.
type responseWriter struct {
	http.ResponseWriter
	mngr      *Manager
	req       *http.Request
	sess      *Session
	isWritten bool
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.save(w.req.Context(), w.ResponseWriter, w.sess)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if !w.isWritten {
		w.isWritten = true
		w.mngr.save(w.req.Context(), w.ResponseWriter, w.sess)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Manager manages HTTP sessions on top of a tiered store.
type Manager struct {
	store             Store
	lifetime          time.Duration
	idleTimeout       time.Duration
	codec             Codec
	logger            *slog.Logger
	cookieName        string
	cookiePath        string
	cookieDomain      string
	cookieSecure      bool
	cookieHttpOnly    bool
	cookiePartitioned bool
	cookieSameSite    http.SameSite
	cookiePersisted   bool
	key               *struct{}
}

type config func(*Manager)

// WithLifetime sets the absolute lifetime of a session. (default 24hr.)
func WithLifetime(lifetime time.Duration) config {
	return config(func(m *Manager) {
		m.lifetime = lifetime
	})
}

// WithIdleTimeout sets the idle timeout of the cookie. It should not exceed
// the store ttl, after which the session is swept anyway. (default none)
func WithIdleTimeout(timeout time.Duration) config {
	return config(func(m *Manager) {
		m.idleTimeout = timeout
	})
}

// WithCodec sets the serializer for session values. (default gob)
func WithCodec(codec Codec) config {
	return config(func(m *Manager) {
		m.codec = codec
	})
}

// WithLogger sets the logger used to report failed saves. (default discard)
func WithLogger(logger *slog.Logger) config {
	return config(func(m *Manager) {
		m.logger = logger
	})
}

// WithName sets the cookie name for the session. (default "session_id".)
func WithName(name string) config {
	return config(func(m *Manager) {
		m.cookieName = name
	})
}

// WithPath sets the cookie path. (default "/".)
func WithPath(path string) config {
	return config(func(m *Manager) {
		m.cookiePath = path
	})
}

// WithDomain sets the cookie domain. (default "".)
func WithDomain(domain string) config {
	return config(func(m *Manager) {
		m.cookieDomain = domain
	})
}

// WithSecure sets the Secure flag on the cookie. (default false)
func WithSecure(secure bool) config {
	return config(func(m *Manager) {
		m.cookieSecure = secure
	})
}

// WithHttpOnly sets the HttpOnly flag on the cookie. (default true)
func WithHttpOnly(httpOnly bool) config {
	return config(func(m *Manager) {
		m.cookieHttpOnly = httpOnly
	})
}

// WithPartitioned sets the Partitioned flag on the cookie. (default false)
func WithPartitioned(partitioned bool) config {
	return config(func(m *Manager) {
		m.cookiePartitioned = partitioned
	})
}

// WithSameSite sets the SameSite policy for the cookie. (default Lax)
func WithSameSite(sameSite http.SameSite) config {
	return config(func(m *Manager) {
		m.cookieSameSite = sameSite
	})
}

// WithPersisted sets whether the cookie outlives the browser session.
// (default true)
func WithPersisted(persisted bool) config {
	return config(func(m *Manager) {
		m.cookiePersisted = persisted
	})
}

// Handler wraps an http.Handler and provides load-and-save session functionality.
func (m *Manager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")

		var token string
		cookie, err := r.Cookie(m.cookieName)
		if err == nil {
			token = cookie.Value
		}
		sess, err := m.Load(r.Context(), token)
		if err != nil {
			m.logger.Error("session load failed", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		sr := r.WithContext(context.WithValue(r.Context(), m.key, sess))
		sw := &responseWriter{ResponseWriter: w, mngr: m, req: sr, sess: sess}
		next.ServeHTTP(sw, sr)

		if !sw.isWritten {
			m.save(sr.Context(), w, sess)
		}
	})
}

// Get retrieves the current session from the request context. It always
// returns a valid session object, never nil.
func (m *Manager) Get(r *http.Request) *Session {
	sess, ok := r.Context().Value(m.key).(*Session)
	if !ok {
		return newSession()
	}
	return sess
}

// Load reads the session for token from the store. An empty token, an
// unknown one or a session past its lifetime yields a fresh session.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return newSession(), nil
	}

	data, err := m.store.Read(ctx, token)
	if err != nil {
		if errors.Is(err, tieredsession.ErrSessionNotFound) {
			return newSession(), nil
		}
		return nil, err
	}

	createdAt, values, err := m.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	if time.Now().After(createdAt.Add(m.lifetime)) {
		if err := m.store.Destroy(ctx, token); err != nil {
			return nil, err
		}
		return newSession(), nil
	}

	return &Session{id: token, createdAt: createdAt, values: values}, nil
}

// Save persists sess and updates the cookie. Destroyed sessions are removed
// from the store and their cookie expired.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.isDestroyed {
		if err := m.store.Destroy(ctx, sess.id); err != nil {
			return err
		}
		if sess.previousID != "" {
			if err := m.store.Destroy(ctx, sess.previousID); err != nil {
				return err
			}
		}
		m.writeCookie(w, sess.id, time.Time{})
		return nil
	}

	expiresAt := sess.createdAt.Add(m.lifetime)

	if sess.isModified {
		data, err := m.codec.Encode(sess.createdAt, sess.values)
		if err != nil {
			return err
		}
		if err := m.store.Write(ctx, sess.id, data); err != nil {
			return err
		}
		sess.isModified = false
	}

	if sess.previousID != "" {
		if err := m.store.Destroy(ctx, sess.previousID); err != nil {
			return err
		}
		sess.previousID = ""
	}

	if m.idleTimeout > 0 {
		idleExpires := time.Now().Add(m.idleTimeout)
		if idleExpires.Before(expiresAt) {
			expiresAt = idleExpires
		}
	}
	m.writeCookie(w, sess.id, expiresAt)
	return nil
}

func (m *Manager) save(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if err := m.Save(ctx, w, sess); err != nil {
		m.logger.Error("session save failed", "error", err)
	}
}

// writeCookie sets or expires the session cookie on the HTTP response.
func (m *Manager) writeCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	cookie := &http.Cookie{
		Value:       token,
		Name:        m.cookieName,
		Domain:      m.cookieDomain,
		HttpOnly:    m.cookieHttpOnly,
		Path:        m.cookiePath,
		SameSite:    m.cookieSameSite,
		Secure:      m.cookieSecure,
		Partitioned: m.cookiePartitioned,
	}

	if expiresAt.IsZero() {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else if m.cookiePersisted {
		cookie.Expires = time.Unix(expiresAt.Unix()+1, 0)
		cookie.MaxAge = int(time.Until(expiresAt).Seconds() + 1)
	}

	http.SetCookie(w, cookie)
}

// NewManager creates a new session Manager with a Store and optional configuration.
func NewManager(store Store, cfgs ...config) *Manager {
	mngr := &Manager{
		store:           store,
		lifetime:        24 * time.Hour,
		codec:           GobCodec{},
		logger:          slog.New(slog.DiscardHandler),
		cookieName:      "session_id",
		cookiePath:      "/",
		cookieHttpOnly:  true,
		cookieSameSite:  http.SameSiteLaxMode,
		cookiePersisted: true,
		key:             &struct{}{},
	}

	for _, cfg := range cfgs {
		cfg(mngr)
	}

	return mngr
}
