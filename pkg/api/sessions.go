package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/session"
)

// fingerprint derives the client binding material for a request.
func fingerprint(r *http.Request) string {
	return session.FingerprintHash(r.UserAgent() + "|" + clientIP(r))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// sessionMiddleware attaches the principal for requests carrying a
// session token. An invalid or revoked token is rejected; requests
// without a token pass through anonymously.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		rec, err := s.sessions.Load(r.Context(), token, fingerprint(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		_ = s.sessions.Touch(r.Context(), rec.SessionID)
		ctx := context.WithValue(r.Context(), ctxPrincipal, rec.PrincipalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type createSessionRequest struct {
	PrincipalID string `json:"principalId" validate:"required"`
}

type sessionResponse struct {
	SessionID   string `json:"sessionId"`
	PrincipalID string `json:"principalId"`
	ExpiresAt   string `json:"expiresAt"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid session request"))
		return
	}

	rec, err := s.sessions.Create(r.Context(), req.PrincipalID, fingerprint(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:   rec.SessionID,
		PrincipalID: rec.PrincipalID,
		ExpiresAt:   rec.AbsoluteExpiry.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleRotateSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "session token required"))
		return
	}
	newID, err := s.sessions.Rotate(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": newID})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "session token required"))
		return
	}
	if err := s.sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
