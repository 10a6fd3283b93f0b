package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/swcache"
)

var errClientBusy = errors.New("server: client queue full")

// sseClient is a connected page listening on the events stream.
type sseClient struct {
	id   string
	msgs chan swcache.Message
	done <-chan struct{}
}

var _ swcache.Client = (*sseClient)(nil)

func (c *sseClient) ID() string { return c.id }

// PostMessage queues msg without blocking.
func (c *sseClient) PostMessage(_ context.Context, msg swcache.Message) error {
	select {
	case <-c.done:
		return context.Canceled
	default:
	}
	select {
	case c.msgs <- msg:
		return nil
	default:
		return errClientBusy
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := &sseClient{
		id:   uuid.NewString(),
		msgs: make(chan swcache.Message, s.queueLen),
		done: r.Context().Done(),
	}
	clients := s.worker.Clients()
	clients.Register(c)
	defer clients.Unregister(c.id)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: hello\ndata: {\"id\":%q}\n\n", c.id)
	fl.Flush()
	s.log.Debug("client connected", swcache.Fields{"client": c.id, "clients": clients.Len()})

	ping := time.NewTicker(s.pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("client disconnected", swcache.Fields{"client": c.id})
			return
		case <-s.done:
			s.log.Debug("closing events stream for shutdown", swcache.Fields{"client": c.id})
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			fl.Flush()
		case msg := <-c.msgs:
			b, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("encode message", swcache.Fields{"client": c.id, "err": err})
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
			fl.Flush()
		}
	}
}
