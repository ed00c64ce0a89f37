// Package dummy runs a small web app with idle-timeout sessions, used to try
// sessionprobe locally and by integration tests.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessionprobe/internal/logx"
)

const (
	CookieName     = "SESSIONID"
	ExpiredMessage = "Your session has expired"
)

type ServerConfig struct {
	Port       int
	SessionTTL time.Duration
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger logx.Logger
}

// Target holds the sessions. A session stays valid while requests arrive no
// more than SessionTTL apart; every valid request refreshes it.
type Target struct {
	ttl time.Duration
	now func() time.Time
	log logx.Logger

	mu       sync.Mutex
	sessions map[string]time.Time

	mux *http.ServeMux
}

func NewTarget(cfg ServerConfig) *Target {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger.IsZero() {
		cfg.Logger = logx.Nop()
	}

	t := &Target{
		ttl:      cfg.SessionTTL,
		now:      cfg.Now,
		log:      cfg.Logger,
		sessions: make(map[string]time.Time),
		mux:      http.NewServeMux(),
	}
	t.mux.HandleFunc("/login", t.handleLogin)
	t.mux.HandleFunc("/account", t.handleAccount)
	t.mux.HandleFunc("/logout", t.handleLogout)
	return t
}

func (t *Target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.ServeHTTP(w, r)
}

// Login creates a session and returns its ID.
func (t *Target) Login() string {
	id := uuid.New().String()
	t.mu.Lock()
	t.sessions[id] = t.now()
	t.mu.Unlock()
	return id
}

// touch reports whether id is alive and refreshes it if so. Expired
// sessions are forgotten.
func (t *Target) touch(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.sessions[id]
	if !ok {
		return false
	}
	now := t.now()
	if now.Sub(last) > t.ttl {
		delete(t.sessions, id)
		return false
	}
	t.sessions[id] = now
	return true
}

func (t *Target) handleLogin(w http.ResponseWriter, r *http.Request) {
	id := t.Login()
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: id, Path: "/", HttpOnly: true})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><p>Logged in.</p><p>Session: %s</p></body></html>", id)
	t.log.Info("session created", logx.String("session", id))
}

func (t *Target) handleAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	c, err := r.Cookie(CookieName)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "<html><body><p>Please log in.</p></body></html>")
		return
	}
	if !t.touch(c.Value) {
		t.log.Info("session expired", logx.String("session", c.Value))
		fmt.Fprintf(w, "<html><body><p>%s. Please log in again.</p></body></html>", ExpiredMessage)
		return
	}
	fmt.Fprint(w, "<html><body><h1>Welcome back</h1><p>Your account overview.</p></body></html>")
}

func (t *Target) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		t.mu.Lock()
		delete(t.sessions, c.Value)
		t.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	fmt.Fprint(w, "<html><body><p>Logged out.</p></body></html>")
}

// SampleRequest is a raw request for /account carrying session id.
func SampleRequest(host, id string) []byte {
	return []byte("GET /account HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"User-Agent: sessionprobe-target\r\n" +
		"Accept: text/html\r\n" +
		"Cookie: " + CookieName + "=" + id + "\r\n" +
		"\r\n")
}

// Server is a running Target.
type Server struct {
	*Target
	Addr string
	srv  *http.Server
}

// Start listens on cfg.Port (0 picks a free port) and serves in the
// background.
func Start(cfg ServerConfig) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return nil, err
	}
	target := NewTarget(cfg)
	s := &Server{
		Target: target,
		Addr:   ln.Addr().String(),
		srv: &http.Server{
			Handler:           target,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			target.log.Error("target server failed", logx.Err(err))
		}
	}()
	return s, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
