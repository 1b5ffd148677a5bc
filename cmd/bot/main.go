package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"capclicker.app/internal/protocol"
	"capclicker.app/internal/sim/session"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		userID   = flag.String("user", "", "user id (empty: guest)")
		token    = flag.String("token", "", "auth token for -user")
		every    = flag.Duration("every", 200*time.Millisecond, "delay between actions")
		duration = flag.Duration("duration", 0, "stop after this long (0: run until interrupted)")
		logout   = flag.Bool("logout", false, "send LOGOUT before exiting")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		UserID:          *userID,
	}
	if *token != "" {
		hello.Auth = &protocol.HelloAuth{Token: *token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var (
		mu       sync.Mutex
		latest   session.View
		haveView bool
	)
	welcomed := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Printf("WELCOME user=%s session=%s guest=%v upgrades=%d offers=%d", w.UserID, w.SessionID, w.Guest, w.Catalogs.Upgrades.Count, w.Catalogs.Offers.Count)
				if w.Token != "" {
					logger.Printf("reconnect with -user %s -token %s", w.UserID, w.Token)
				}
				close(welcomed)

			case protocol.TypeState:
				var st protocol.StateMsg
				if err := json.Unmarshal(msg, &st); err != nil {
					continue
				}
				mu.Lock()
				latest, haveView = st.View, true
				mu.Unlock()

			case protocol.TypeResult:
				var r protocol.ResultMsg
				if err := json.Unmarshal(msg, &r); err != nil {
					continue
				}
				if r.Kind != string(session.KindClick) || !r.OK {
					logger.Printf("RESULT act=%s kind=%s ok=%v code=%s amount=%.2f", r.ActID, r.Kind, r.OK, r.Code, r.Amount)
				}

			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				logger.Printf("EVENT %s %v", ev.Name, ev.Params)

			case protocol.TypeError:
				var e protocol.ErrorMsg
				if err := json.Unmarshal(msg, &e); err != nil {
					continue
				}
				logger.Printf("ERROR %s %s", e.Code, e.Message)
			}
		}
	}()

	select {
	case <-welcomed:
	case <-readerDone:
		logger.Fatalf("connection closed before WELCOME")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	tick := time.NewTicker(*every)
	defer tick.Stop()

	seq := 0
	send := func(act session.Action) bool {
		seq++
		msg := protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ActID:           fmt.Sprintf("A%d", seq),
			Kind:            string(act.Kind),
			UpgradeID:       act.UpgradeID,
			OfferID:         act.OfferID,
		}
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case <-stop:
		case <-deadline:
		case <-readerDone:
			return
		case <-tick.C:
			mu.Lock()
			v, ok := latest, haveView
			mu.Unlock()
			if !ok {
				continue
			}
			act, ok := nextAction(v)
			if !ok {
				continue
			}
			if !send(act) {
				return
			}
			continue
		}
		break
	}

	mu.Lock()
	v := latest
	mu.Unlock()
	logger.Printf("final money=%.2f mps=%.2f rep=%.1f climate=%.1f level=%d lifetime=%.2f",
		v.Money, v.MoneyPerSecond, v.Reputation, v.Climate, v.AscensionLevel, v.LifetimeEarnings)

	if *logout {
		send(session.Action{Kind: session.KindLogout})
		select {
		case <-readerDone:
		case <-time.After(3 * time.Second):
		}
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
}
