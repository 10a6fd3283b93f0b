package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/unkn0wn-root/swcache"
)

type stateReply struct {
	State   string `json:"state"`
	Static  string `json:"static"`
	Runtime string `json:"runtime"`
}

type namespaceReply struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

type cachesReply struct {
	State      string           `json:"state"`
	Namespaces []namespaceReply `json:"namespaces"`
}

func (s *Server) state() stateReply {
	static, runtime := s.worker.Names()
	return stateReply{State: s.worker.State().String(), Static: static, Runtime: runtime}
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "install", s.worker.Install)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, "activate", s.worker.Activate)
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op string, run func(context.Context) error) {
	err := run(r.Context())
	admin := adminFrom(r.Context())
	if err == nil {
		s.log.Info("lifecycle by admin", swcache.Fields{"op": op, "admin": admin.Email})
		writeJSON(w, http.StatusOK, s.state())
		return
	}

	var se *swcache.StateError
	var ie *swcache.InstallError
	switch {
	case errors.As(err, &se):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, swcache.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ie):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("lifecycle failed", swcache.Fields{"op": op, "err": err})
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCaches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := s.worker.Storage()
	names, err := st.ListNamespaces(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := cachesReply{State: s.worker.State().String(), Namespaces: make([]namespaceReply, 0, len(names))}
	for _, n := range names {
		keys, err := st.Keys(ctx, n)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if keys == nil {
			keys = []string{}
		}
		out.Namespaces = append(out.Namespaces, namespaceReply{Name: n, Keys: keys})
	}
	writeJSON(w, http.StatusOK, out)
}
