package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var validSessionIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

const (
	maxOpenBodyBytes   = 4 * 1024
	maxResumeBodyBytes = 4 * 1024
	maxExecBodyBytes   = 16 * 1024
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gateway/sessions", h.openSession)
	mux.HandleFunc("/gateway/sessions/resume", h.resumeSession)
	mux.HandleFunc("/gateway/sessions/", h.sessionAction)
	return instrumentGatewayRequests(mux)
}

func instrumentGatewayRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		observer := &statusObserver{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(observer, r)
		log.Printf(
			"level=info event=gateway_http_request method=%s path=%q status=%d duration_ms=%d remote=%q",
			r.Method,
			r.URL.Path,
			observer.status,
			time.Since(started).Milliseconds(),
			r.RemoteAddr,
		)
	})
}

type statusObserver struct {
	http.ResponseWriter
	status int
}

func (o *statusObserver) WriteHeader(status int) {
	o.status = status
	o.ResponseWriter.WriteHeader(status)
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logGatewayRejection(r, "open_session", "method_not_allowed", "")
		writeErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	var req OpenSessionRequest
	if err := decodeJSONBody(w, r, maxOpenBodyBytes, &req); err != nil {
		logGatewayRejection(r, "open_session", "bad_json", err.Error())
		return
	}

	meta, err := h.svc.OpenSession(req)
	if err != nil {
		logGatewayRejection(r, "open_session", "open_failed", err.Error())
		writeMappedErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, meta)
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logGatewayRejection(r, "resume_session", "method_not_allowed", "")
		writeErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		logGatewayRejection(r, "resume_session", "missing_bearer_token", "")
		writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token is required")
		return
	}

	// Keep endpoint JSON shape strict even though token moved to Authorization.
	if err := decodeJSONBody(w, r, maxResumeBodyBytes, &struct{}{}); err != nil {
		logGatewayRejection(r, "resume_session", "bad_json", err.Error())
		return
	}

	meta, err := h.svc.ResumeSession(token)
	if err != nil {
		logGatewayRejection(r, "resume_session", "resume_failed", err.Error())
		writeMappedErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) sessionAction(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/gateway/sessions/"), "/")
	if trimmed == "" {
		logGatewayRejection(r, "session_action", "missing_session_id", "")
		writeErr(w, http.StatusBadRequest, "BAD_PATH", "session id is required")
		return
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		logGatewayRejection(r, "session_action", "too_many_path_parts", "")
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
		return
	}

	sid := parts[0]
	if !validSessionIDPattern.MatchString(sid) {
		logGatewayRejection(r, "session_action", "invalid_session_id", sid)
		writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id format")
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		logGatewayRejection(r, "session_action", "missing_bearer_token", sid)
		writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case r.Method == http.MethodDelete && action == "":
		if err := h.svc.Close(sid, token); err != nil {
			logGatewayRejection(r, "session_action", "close_failed", err.Error())
			writeMappedErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && action == "exec":
		var req struct {
			Line string `json:"line"`
		}
		if err := decodeJSONBody(w, r, maxExecBodyBytes, &req); err != nil {
			logGatewayRejection(r, "session_action", "exec_bad_json", sid)
			return
		}
		result, err := h.svc.Exec(sid, token, req.Line)
		if err != nil {
			logGatewayRejection(r, "session_action", "exec_failed", err.Error())
			writeMappedErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case r.Method == http.MethodGet && action == "commands":
		commands, err := h.svc.Commands(sid, token)
		if err != nil {
			logGatewayRejection(r, "session_action", "commands_failed", err.Error())
			writeMappedErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, commands)
	default:
		logGatewayRejection(r, "session_action", "unknown_route", trimmed)
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
	}
}

func logGatewayRejection(r *http.Request, operation string, reason string, details string) {
	log.Printf("level=warn event=gateway_request_rejected operation=%s method=%s path=%q reason=%s details=%q remote=%q", operation, r.Method, r.URL.Path, reason, details, r.RemoteAddr)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(target); err != nil {
		var syntaxErr *json.SyntaxError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		case errors.As(err, &maxBytesErr):
			writeErr(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds max size")
		case strings.Contains(err.Error(), "unknown field"):
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request contains unknown fields")
		default:
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must contain exactly one JSON object")
		// A second valid JSON value decodes with err == nil; the caller must
		// still see a failure or it would act on the request after the 400.
		if err == nil {
			err = errors.New("unexpected trailing data in request body")
		}
		return err
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeMappedErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		writeErr(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session could not be found or already closed")
		return
	}
	if errors.Is(err, ErrInvalidRequest) {
		writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "request is missing required fields or uses disallowed values")
		return
	}
	if errors.Is(err, ErrUnauthorized) {
		writeErr(w, http.StatusForbidden, "FORBIDDEN", "session token does not authorize this action")
		return
	}
	if errors.Is(err, ErrSessionExpired) {
		writeErr(w, http.StatusUnauthorized, "SESSION_EXPIRED", "session token has expired")
		return
	}
	if errors.Is(err, ErrSessionClosed) {
		writeErr(w, http.StatusGone, "SESSION_CLOSED", "session is closed")
		return
	}
	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		status := http.StatusBadGateway
		if friendly.Code == "EXEC_RATE_LIMITED" {
			status = http.StatusTooManyRequests
		} else if friendly.Code == "PERSISTENCE_FAILED" || friendly.Code == "TABLE_FULL" {
			status = http.StatusServiceUnavailable
		}
		writeErr(w, status, friendly.Code, friendly.Message)
		return
	}
	writeErr(w, http.StatusInternalServerError, "INTERNAL_ERROR", "console gateway internal error")
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message, "status": strconv.Itoa(status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
