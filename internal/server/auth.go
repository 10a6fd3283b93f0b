package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/authclient"
)

// Authenticator checks credentials against the login endpoint.
// *authclient.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*authclient.Session, error)
}

type ctxKey struct{}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	User  authclient.User `json:"user"`
	Token string          `json:"token"`
}

// loginReply mirrors the upstream login response shape.
type loginReply struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    *loginData `json:"data,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, loginReply{Message: "email and password are required"})
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	var se *authclient.StatusError
	switch {
	case err == nil:
	case errors.Is(err, authclient.ErrRejected),
		errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden):
		writeJSON(w, http.StatusUnauthorized, loginReply{Message: "invalid credentials"})
		return
	default:
		s.log.Warn("login upstream failed", swcache.Fields{"err": err})
		writeJSON(w, http.StatusBadGateway, loginReply{Message: "login service unavailable"})
		return
	}

	s.sessions.SetDefault(sess.Token, sess.User)
	s.log.Info("login", swcache.Fields{"role": sess.User.Role})
	writeJSON(w, http.StatusOK, loginReply{Success: true, Data: &loginData{User: sess.User, Token: sess.Token}})
}

// requireAdmin admits requests carrying the bearer token of an admin session.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tok == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="swcache"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		v, found := s.sessions.Get(tok)
		if !found {
			writeError(w, http.StatusUnauthorized, "unknown or expired session")
			return
		}
		u := v.(authclient.User)
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func adminFrom(ctx context.Context) authclient.User {
	u, _ := ctx.Value(ctxKey{}).(authclient.User)
	return u
}
