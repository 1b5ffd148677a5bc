package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"capclicker.app/internal/persistence/store"
	"capclicker.app/internal/protocol"
	"capclicker.app/internal/sim/session"
	"capclicker.app/internal/telemetry"
)

type Config struct {
	AuthSecret       string
	ActionsPerSecond float64
	ActionBurst      int
	Params           protocol.GameParams
}

type Server struct {
	mgr    *session.Manager
	sink   telemetry.Sink
	log    *log.Logger
	signer Signer
	cfg    Config

	upgrader websocket.Upgrader
}

func NewServer(mgr *session.Manager, sink telemetry.Sink, cfg Config, logger *log.Logger) *Server {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		mgr:    mgr,
		sink:   sink,
		log:    logger,
		signer: NewSigner(cfg.AuthSecret),
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) limiter() *rate.Limiter {
	if s.cfg.ActionsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.cfg.ActionBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.ActionsPerSecond), burst)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		userID := sess.UserID()
		defer s.mgr.Release(userID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 32)
		writerDone := make(chan struct{})

		// Writer goroutine: RESULT/ERROR from the reader, STATE and EVENT from the session.
		go func() {
			defer close(writerDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-out:
					if !ok {
						return
					}
					b = msg
				case v := <-sess.Updates():
					b, _ = json.Marshal(protocol.StateMsg{Type: protocol.TypeState, ProtocolVersion: protocol.Version, View: v})
				case n := <-sess.Notices():
					b, _ = json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Name: string(n.Name), Params: n.Params})
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					_ = conn.Close()
					return
				}
			}
		}()

		send := func(b []byte) bool {
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		lim := s.limiter()
		// Reader loop.
	read:
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				if !send(errorJSON(protocol.ErrProtoBadRequest, "expected ACT")) {
					break read
				}
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				if !send(errorJSON(protocol.ErrProtoBadRequest, "bad protocol_version")) {
					break read
				}
				continue
			}
			act, err := protocol.DecodeAct(msg)
			if err != nil {
				if !send(errorJSON(protocol.ErrBadRequest, err.Error())) {
					break read
				}
				continue
			}
			if !lim.Allow() {
				b, _ := json.Marshal(protocol.ResultMsg{
					Type: protocol.TypeResult, ProtocolVersion: protocol.Version,
					ActID: act.ActID, Kind: act.Kind, Code: protocol.ErrRateLimit,
				})
				if !send(b) {
					break read
				}
				continue
			}
			res, err := sess.Do(ctx, act.Action())
			if err != nil {
				break
			}
			b, _ := json.Marshal(protocol.NewResult(act.ActID, res))
			if !send(b) || res.Ended {
				break
			}
		}

		// Let the writer flush queued results, then stop it.
		close(out)
		select {
		case <-writerDone:
		case <-time.After(5 * time.Second):
			cancel()
			<-writerDone
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session.Session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return nil
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}

	userID := strings.TrimSpace(hello.UserID)
	guest := userID == ""
	if guest {
		userID = "guest-" + uuid.NewString()
	} else {
		token := ""
		if hello.Auth != nil {
			token = strings.TrimSpace(hello.Auth.Token)
		}
		if !s.signer.Verify(userID, token) {
			s.sink.Emit(telemetry.New(telemetry.AuthError, userID, time.Now(), telemetry.Params{"error": "bad token"}))
			s.reject(conn, protocol.ErrAuth, "bad token")
			return nil
		}
	}

	sess, err := s.mgr.Open(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInUse):
			s.reject(conn, protocol.ErrAlreadyConnected, "user already connected")
		case errors.Is(err, store.ErrBadUserID):
			s.reject(conn, protocol.ErrProtoBadRequest, "bad user_id")
		default:
			s.log.Printf("open session user=%s: %v", userID, err)
			s.reject(conn, protocol.ErrInternal, "")
		}
		return nil
	}

	cats := s.mgr.Engine().Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		UserID:          userID,
		SessionID:       sess.ID(),
		Token:           s.signer.Sign(userID),
		Guest:           guest,
		Params:          s.cfg.Params,
		Catalogs: protocol.CatalogDigests{
			Upgrades: protocol.DigestRef{Digest: cats.Upgrades.Digest, Count: len(cats.Upgrades.Defs)},
			Offers:   protocol.DigestRef{Digest: cats.Offers.Digest, Count: len(cats.Offers.Defs)},
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.mgr.Release(userID)
		return nil
	}
	s.sink.Emit(telemetry.New(telemetry.UserLoggedIn, userID, time.Now(), telemetry.Params{"guest": guest}))
	return sess
}

func (s *Server) reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func errorJSON(code, message string) []byte {
	b, _ := json.Marshal(protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message})
	return b
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
