package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"console-terminal/internal/builtin"
	"console-terminal/internal/console"
)

var validUserPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

const (
	sessionTokenTTL       = 12 * time.Hour
	sessionIdleLimit      = 30 * time.Minute
	minSecretBytes        = 32
	envGatewayHMACKey     = "GATEWAY_HMAC_SECRET"
	maxLineBytes          = 4096
	maxExecBytesPerSecond = 64 * 1024
)

type OpenSessionRequest struct {
	User string `json:"user"`
}

type SessionMetadata struct {
	SessionID       string    `json:"session_id"`
	ResumeToken     string    `json:"resume_token,omitempty"`
	ResumeTokenHash string    `json:"resume_token_hash,omitempty"`
	User            string    `json:"user"`
	StartedAt       time.Time `json:"started_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	CommandCount    int       `json:"command_count"`
	LinesExecuted   int       `json:"lines_executed"`
	Connected       bool      `json:"connected"`
}

// ExecResult carries both channels a handler can use: the returned response
// string and whatever it wrote to the raw stream while running.
type ExecResult struct {
	Response string `json:"response"`
	Output   string `json:"output,omitempty"`
}

type CommandInfo struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

// Service hosts command sessions for callers that submit whole lines instead
// of typing bytes: each session owns a dispatch table, Exec routes a line to
// its handler and returns the result. No editing, no echo.
type Service struct {
	store   MetadataStore
	now     func() time.Time
	secret  []byte
	version string

	mu       sync.RWMutex
	sessions map[string]*sessionState
	tokens   map[string]string
}

type sessionState struct {
	meta            SessionMetadata
	console         *console.Console
	defs            []builtin.Definition
	execWindowStart time.Time
	bytesInWindow   int
}

// nullStream satisfies the console stream contract for sessions that never
// run the byte-level editor. Handler stream writes are captured per Exec call
// instead.
type nullStream struct{}

func (nullStream) Available() bool             { return false }
func (nullStream) ReadByte() (byte, error)     { return 0, io.EOF }
func (nullStream) Write(p []byte) (int, error) { return len(p), nil }

func NewService(store MetadataStore, version string) (*Service, error) {
	secret := os.Getenv(envGatewayHMACKey)
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("%s must be set to at least %d bytes", envGatewayHMACKey, minSecretBytes)
	}
	return NewServiceWithSecret(store, []byte(secret), version)
}

func NewServiceWithSecret(store MetadataStore, secret []byte, version string) (*Service, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("gateway hmac secret must be at least %d bytes", minSecretBytes)
	}
	return &Service{
		store:    store,
		now:      time.Now,
		secret:   append([]byte(nil), secret...),
		version:  version,
		sessions: map[string]*sessionState{},
		tokens:   map[string]string{},
	}, nil
}

func (s *Service) OpenSession(req OpenSessionRequest) (SessionMetadata, error) {
	if req.User == "" || !validUserPattern.MatchString(req.User) {
		return SessionMetadata{}, ErrInvalidRequest
	}

	now := s.now().UTC()
	sessionID, err := randomID()
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("session id: %w", err)
	}
	token, err := randomID()
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("resume token: %w", err)
	}
	tokenHash := s.tokenHash(token)

	meta := SessionMetadata{
		SessionID:       sessionID,
		ResumeToken:     token,
		ResumeTokenHash: tokenHash,
		User:            req.User,
		StartedAt:       now,
		LastSeenAt:      now,
		ExpiresAt:       now.Add(sessionTokenTTL),
		Connected:       true,
	}

	state, err := s.buildState(meta)
	if err != nil {
		return SessionMetadata{}, err
	}
	meta.CommandCount = state.console.HandlerCount()
	state.meta.CommandCount = meta.CommandCount

	s.mu.Lock()
	s.sessions[sessionID] = state
	s.tokens[tokenHash] = sessionID
	s.mu.Unlock()

	if err := s.persist(meta); err != nil {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		delete(s.tokens, tokenHash)
		s.mu.Unlock()
		return SessionMetadata{}, &FriendlyError{Code: "PERSISTENCE_FAILED", Message: "session metadata could not be persisted", Cause: err}
	}
	return meta, nil
}

// buildState wires a live command table for a session. The table is derived
// from the stock catalog, so a session resumed after a restart gets the same
// commands it had before.
func (s *Service) buildState(meta SessionMetadata) (*sessionState, error) {
	c := console.New(nullStream{}, false)
	defs := builtin.Catalog(builtin.Info{
		User:      meta.User,
		Version:   s.version,
		StartedAt: meta.StartedAt,
		Now:       s.now,
	})
	if !builtin.Install(c, defs) {
		return nil, &FriendlyError{Code: "TABLE_FULL", Message: "command table has no free slots", Cause: nil}
	}
	return &sessionState{meta: meta, console: c, defs: defs, execWindowStart: meta.StartedAt}, nil
}

func (s *Service) ResumeSession(token string) (SessionMetadata, error) {
	tokenHash := s.tokenHash(strings.TrimSpace(token))

	s.mu.Lock()
	if sid, ok := s.tokens[tokenHash]; ok {
		st, live := s.sessions[sid]
		if !live {
			s.mu.Unlock()
			return SessionMetadata{}, ErrSessionNotFound
		}
		if s.isExpired(st.meta) {
			s.mu.Unlock()
			s.evictExpired(sid)
			return SessionMetadata{}, ErrSessionExpired
		}
		st.meta.LastSeenAt = s.now().UTC()
		meta := st.meta
		s.mu.Unlock()
		meta.ResumeToken = token
		if err := s.persist(meta); err != nil {
			log.Printf("level=warn event=gateway_store_upsert_failed session=%s error=%v", meta.SessionID, err)
		}
		return meta, nil
	}
	s.mu.Unlock()

	// Not in memory: fall back to the persisted record and revive the session
	// with a fresh command table.
	meta, err := s.store.ByTokenHash(tokenHash)
	if err != nil {
		return SessionMetadata{}, ErrSessionNotFound
	}
	if s.isExpired(meta) {
		return SessionMetadata{}, ErrSessionExpired
	}
	meta.LastSeenAt = s.now().UTC()
	meta.Connected = true
	state, err := s.buildState(meta)
	if err != nil {
		return SessionMetadata{}, err
	}
	meta.CommandCount = state.console.HandlerCount()
	state.meta = meta

	s.mu.Lock()
	s.sessions[meta.SessionID] = state
	s.tokens[tokenHash] = meta.SessionID
	s.mu.Unlock()

	if err := s.persist(meta); err != nil {
		log.Printf("level=warn event=gateway_store_upsert_failed session=%s error=%v", meta.SessionID, err)
	}
	meta.ResumeToken = token
	return meta, nil
}

func (s *Service) Exec(sessionID string, token string, line string) (ExecResult, error) {
	if len(line) > maxLineBytes {
		return ExecResult{}, ErrInvalidRequest
	}
	st, err := s.authorize(sessionID, token)
	if err != nil {
		return ExecResult{}, err
	}
	if err := s.checkExecBudget(sessionID, len(line)); err != nil {
		return ExecResult{}, err
	}

	args := console.ParseLine(line)
	if args.Word(0) == "" {
		s.touchSession(sessionID)
		return ExecResult{}, nil
	}
	handler := st.console.HandlerFor(args.Word(0))
	if handler == nil {
		s.touchSession(sessionID)
		return ExecResult{}, nil
	}

	var raw strings.Builder
	response := handler(args, &raw)

	s.mu.Lock()
	if current, ok := s.sessions[sessionID]; ok {
		current.meta.LinesExecuted++
		current.meta.LastSeenAt = s.now().UTC()
	}
	s.mu.Unlock()
	return ExecResult{Response: response, Output: raw.String()}, nil
}

func (s *Service) Commands(sessionID string, token string) ([]CommandInfo, error) {
	st, err := s.authorize(sessionID, token)
	if err != nil {
		return nil, err
	}
	out := make([]CommandInfo, 0, len(st.defs))
	for _, def := range st.defs {
		out = append(out, CommandInfo{Name: def.Name, Usage: def.Usage, Description: def.Description})
	}
	s.touchSession(sessionID)
	return out, nil
}

func (s *Service) Close(sessionID string, token string) error {
	if _, err := s.authorize(sessionID, token); err != nil {
		return err
	}
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		delete(s.tokens, st.meta.ResumeTokenHash)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	st.meta.Connected = false
	st.meta.LastSeenAt = s.now().UTC()
	if err := s.persist(st.meta); err != nil {
		log.Printf("level=warn event=gateway_store_upsert_failed session=%s error=%v", st.meta.SessionID, err)
	}
	return nil
}

func (s *Service) authorize(sessionID string, token string) (*sessionState, error) {
	tokenHash := s.tokenHash(strings.TrimSpace(token))
	tokenHashPrefix := tokenHash
	if len(tokenHashPrefix) > 12 {
		tokenHashPrefix = tokenHashPrefix[:12]
	}

	s.mu.RLock()
	sid, ok := s.tokens[tokenHash]
	if !ok {
		_, sessionActive := s.sessions[sessionID]
		s.mu.RUnlock()
		if !sessionActive {
			log.Printf("level=warn event=gateway_authorize_failed reason=session_not_active session=%s token_hash_prefix=%s", sessionID, tokenHashPrefix)
			return nil, ErrSessionClosed
		}
		log.Printf("level=warn event=gateway_authorize_failed reason=token_not_found session=%s token_hash_prefix=%s", sessionID, tokenHashPrefix)
		return nil, ErrUnauthorized
	}
	if sid != sessionID {
		s.mu.RUnlock()
		log.Printf("level=warn event=gateway_authorize_failed reason=session_mismatch session=%s mapped_session=%s token_hash_prefix=%s", sessionID, sid, tokenHashPrefix)
		return nil, ErrUnauthorized
	}
	st, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		log.Printf("level=warn event=gateway_authorize_failed reason=session_not_active session=%s token_hash_prefix=%s", sessionID, tokenHashPrefix)
		return nil, ErrSessionNotFound
	}
	if s.isExpired(st.meta) {
		log.Printf("level=warn event=gateway_authorize_failed reason=session_expired session=%s token_hash_prefix=%s", sessionID, tokenHashPrefix)
		s.evictExpired(sessionID)
		return nil, ErrSessionExpired
	}
	return st, nil
}

// evictExpired drops a dead session from the live maps and persists its final
// state. Eviction cannot go through authorize: authorize itself fails on an
// expired session, which would leave the entry in memory forever.
func (s *Service) evictExpired(sessionID string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sessionID)
	delete(s.tokens, st.meta.ResumeTokenHash)
	// LastSeenAt stays stale on purpose: refreshing it would make an
	// idle-expired record look resumable from the store again.
	st.meta.Connected = false
	meta := st.meta
	s.mu.Unlock()
	if err := s.persist(meta); err != nil {
		log.Printf("level=warn event=gateway_store_upsert_failed session=%s error=%v", meta.SessionID, err)
	}
}

func (s *Service) checkExecBudget(sessionID string, bytes int) error {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if st.execWindowStart.IsZero() || now.Sub(st.execWindowStart) >= time.Second {
		st.execWindowStart = now
		st.bytesInWindow = 0
	}
	if st.bytesInWindow+bytes > maxExecBytesPerSecond {
		return &FriendlyError{Code: "EXEC_RATE_LIMITED", Message: "command throughput limit exceeded", Cause: nil}
	}
	st.bytesInWindow += bytes
	return nil
}

func (s *Service) touchSession(sessionID string) {
	lastSeen := s.now().UTC()
	s.mu.Lock()
	if current, ok := s.sessions[sessionID]; ok {
		current.meta.LastSeenAt = lastSeen
	}
	s.mu.Unlock()
}

func (s *Service) isExpired(meta SessionMetadata) bool {
	now := s.now().UTC()
	if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
		return true
	}
	if !meta.LastSeenAt.IsZero() && now.After(meta.LastSeenAt.Add(sessionIdleLimit)) {
		return true
	}
	return false
}

// persist writes the metadata record minus the bare resume token.
func (s *Service) persist(meta SessionMetadata) error {
	meta.ResumeToken = ""
	return s.store.Upsert(meta)
}

func (s *Service) tokenHash(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
