package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"capclicker.app/internal/observerproto"
	"capclicker.app/internal/sim/session"
)

// Server exposes a read-only view of running sessions to local tooling.
type Server struct {
	mgr *session.Manager
	log *log.Logger
	now func() time.Time

	upgrader websocket.Upgrader
}

func NewServer(mgr *session.Manager, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		mgr: mgr,
		log: logger,
		now: time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.SessionsResponse{
			ProtocolVersion: observerproto.Version,
			AtMs:            s.now().UnixMilli(),
			Sessions:        []observerproto.SessionInfo{},
		}
		for _, sess := range s.mgr.Sessions() {
			resp.Sessions = append(resp.Sessions, observerproto.Info(sess))
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		s.log.Printf("observer subscribe user=%s interval=%dms", sub.UserID, sub.IntervalMs)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		subs := make(chan observerproto.SubscribeMsg, 1)
		subs <- sub

		// Writer goroutine: polls the published view; never consumes the player's stream.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- s.stream(ctx, conn, subs)
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			next, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			select {
			case <-subs:
			default:
			}
			subs <- next
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, subs <-chan observerproto.SubscribeMsg) error {
	var (
		sub      observerproto.SubscribeMsg
		ticker   *time.Ticker
		tick     <-chan time.Time
		wasAlive bool
	)
	lastAt := int64(-1)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub = <-subs:
			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(time.Duration(sub.IntervalMs) * time.Millisecond)
			tick = ticker.C
			lastAt, wasAlive = -1, false
		case <-tick:
		}

		msg := observerproto.ViewMsg{Type: "VIEW", ProtocolVersion: observerproto.Version}
		if sess, ok := s.mgr.Lookup(sub.UserID); ok {
			msg.Online = true
			msg.View = sess.View()
		}
		if msg.Online == wasAlive && (!msg.Online || msg.View.AtMs == lastAt) {
			continue
		}
		wasAlive, lastAt = msg.Online, msg.View.AtMs

		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version || sub.UserID == "" {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.IntervalMs <= 0 {
		sub.IntervalMs = 500
	}
	if sub.IntervalMs < 100 {
		sub.IntervalMs = 100
	}
	if sub.IntervalMs > 10000 {
		sub.IntervalMs = 10000
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
