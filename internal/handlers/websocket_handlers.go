package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"chit-chat/internal/events"
	"chit-chat/internal/websocket"

	ws "github.com/gorilla/websocket"
)

const (
	sendMessageStream = events.SendMessage
	onInputStream     = events.OnInput
)

// HandleEventStream streams the named event for the current user as
// server-sent events until the client disconnects.
func (s *Server) HandleEventStream(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		userID := currentUser(r)
		sub := s.Engine.Broker().Subscribe(r.Context(), userID, name)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(s.KeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
					log.Printf("Event stream write failed for User %s: %v", userID, err)
					return
				}
				flusher.Flush()
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

func (s *Server) upgrader() *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts same-host requests and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// HandleWebSocket streams the same events as the SSE endpoints over a
// websocket and accepts on-input frames.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUser(r)

		conn, err := s.upgrader().Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for User %s: %v", userID, err)
			// Note: Cannot write HTTP error after successful upgrade attempt
			return
		}
		log.Printf("WebSocket connection upgraded for User %s", userID)

		// The connection outlives the request context.
		ctx, cancel := context.WithCancel(context.Background())
		client := &websocket.Client{
			UserID: userID,
			Conn:   conn,
			Sub:    s.Engine.Broker().Subscribe(ctx, userID),
			Typing: s.Engine.PublishTyping,
		}
		go func() {
			defer cancel()
			client.Run(ctx)
		}()
	}
}
