package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"capclicker.app/internal/persistence/store"
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/telemetry"
)

var ErrClosed = errors.New("session closed")

type Kind string

const (
	KindClick       Kind = "CLICK"
	KindBuy         Kind = "BUY"
	KindChooseOffer Kind = "CHOOSE_OFFER"
	KindAscend      Kind = "ASCEND"
	KindSave        Kind = "SAVE"
	KindLogout      Kind = "LOGOUT"
)

// RejectBadAction is returned for action kinds the session does not know.
const RejectBadAction game.Reject = "BAD_ACTION"

type Action struct {
	Kind      Kind
	UpgradeID string
	OfferID   string
}

type Result struct {
	Kind   Kind
	Reject game.Reject
	// Amount is the click value, the purchase cost or the ascension grant.
	Amount float64
	// Ended is set once the session has been logged out.
	Ended bool
}

func (r Result) OK() bool { return r.Reject == game.RejectNone }

// Notice is an out-of-band event pushed to the connected client.
type Notice struct {
	Name   telemetry.Name
	Params telemetry.Params
}

type Config struct {
	TickPeriod  time.Duration
	OfferPoll   time.Duration
	SavePeriod  time.Duration
	StatePush   time.Duration
	SaveTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickPeriod <= 0 {
		c.TickPeriod = 100 * time.Millisecond
	}
	if c.OfferPoll <= 0 {
		c.OfferPoll = time.Second
	}
	if c.SavePeriod <= 0 {
		c.SavePeriod = 30 * time.Second
	}
	if c.StatePush <= 0 {
		c.StatePush = 250 * time.Millisecond
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 10 * time.Second
	}
}

// Archiver keeps the final state of a run that was ascended away.
type Archiver interface {
	ArchiveRun(userID string, ended game.State, at time.Time) (string, error)
}

// Deps are the collaborators shared by every session of a server.
type Deps struct {
	Engine  *game.Engine
	Store   store.Store
	Archive Archiver
	Sink    telemetry.Sink
	Logger  *log.Logger
	Now     func() time.Time
}

func (d *Deps) applyDefaults() {
	if d.Engine == nil {
		d.Engine = game.NewEngine(nil, game.Rules{}, nil)
	}
	if d.Sink == nil {
		d.Sink = telemetry.Nop{}
	}
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

type actionReq struct {
	act   Action
	reply chan Result
}

type saveReq struct {
	state  game.State
	reason string
	at     time.Time
}

// Session owns one player's game.State. Run is the only goroutine that touches it;
// everything else goes through the inbox or reads the published View.
type Session struct {
	id     string
	userID string
	deps   Deps
	cfg    Config

	state    game.State
	lastPush time.Time
	ended    bool

	view atomic.Pointer[View]

	inbox   chan actionReq
	saveq   chan saveReq
	archq   chan saveReq
	views   chan View
	notices chan Notice

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(userID string, s game.State, deps Deps, cfg Config) *Session {
	deps.applyDefaults()
	cfg.applyDefaults()
	sess := &Session{
		id:      uuid.NewString(),
		userID:  userID,
		deps:    deps,
		cfg:     cfg,
		state:   s,
		inbox:   make(chan actionReq, 64),
		saveq:   make(chan saveReq, 1),
		archq:   make(chan saveReq, 4),
		views:   make(chan View, 1),
		notices: make(chan Notice, 32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	sess.publish(deps.Now(), true)
	return sess
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// View returns the most recently published projection. Safe from any goroutine.
func (s *Session) View() View { return *s.view.Load() }

// Updates delivers the latest View, dropping intermediate ones a slow reader missed.
func (s *Session) Updates() <-chan View { return s.views }

func (s *Session) Notices() <-chan Notice { return s.notices }

func (s *Session) Done() <-chan struct{} { return s.done }

// Stop ends Run after a final save.
func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// Do submits an action and waits for its result. Actions are applied in arrival order.
func (s *Session) Do(ctx context.Context, act Action) (Result, error) {
	req := actionReq{act: act, reply: make(chan Result, 1)}
	select {
	case s.inbox <- req:
	case <-s.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-s.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	var saverWG sync.WaitGroup
	saverWG.Add(1)
	go func() {
		defer saverWG.Done()
		s.saver()
	}()
	defer func() {
		if !s.ended {
			s.requestSave("shutdown")
		}
		close(s.saveq)
		close(s.archq)
		saverWG.Wait()
	}()

	tick := time.NewTicker(s.cfg.TickPeriod)
	defer tick.Stop()
	offers := time.NewTicker(s.cfg.OfferPoll)
	defer offers.Stop()
	saves := time.NewTicker(s.cfg.SavePeriod)
	defer saves.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.inbox:
			res := s.Apply(req.act, s.deps.Now())
			req.reply <- res
			if res.Ended {
				return nil
			}
		case <-tick.C:
			s.Tick(s.deps.Now())
		case <-offers.C:
			s.PollOffers(s.deps.Now())
		case <-saves.C:
			s.requestSave("periodic")
		}
	}
}

// Tick, PollOffers and Apply are the loop's step functions. They are exported for
// deterministic tests and must not be called while Run is active.

func (s *Session) Tick(now time.Time) game.TickResult {
	e := s.deps.Engine
	next, res := e.Tick(s.state, now)
	s.state = next
	if res.EnteredGameOver {
		params := telemetry.Params{
			"reason":            e.GameOverReason(next),
			"climate":           next.Climate,
			"reputation":        next.Reputation,
			"ascension_level":   next.AscensionLevel,
			"lifetime_earnings": next.LifetimeEarnings,
		}
		s.emit(telemetry.GameOver, params, now)
		s.notify(telemetry.GameOver, params)
	}
	s.publish(now, res.EnteredGameOver)
	return res
}

func (s *Session) PollOffers(now time.Time) bool {
	next, ok := s.deps.Engine.MaybeGenerateOffers(s.state, now)
	if !ok {
		return false
	}
	s.state = next
	ids := make([]string, 0, len(next.PendingOffers))
	for _, o := range next.PendingOffers {
		ids = append(ids, o.ID)
	}
	params := telemetry.Params{"offer_ids": ids, "ascension_level": next.AscensionLevel}
	s.emit(telemetry.OffersGenerated, params, now)
	s.notify(telemetry.OffersGenerated, params)
	s.publish(now, true)
	return true
}

func (s *Session) Apply(act Action, now time.Time) Result {
	e := s.deps.Engine
	res := Result{Kind: act.Kind}
	switch act.Kind {
	case KindClick:
		next, cr := e.Click(s.state)
		s.state = next
		res.Reject, res.Amount = cr.Reject, cr.Value
		if cr.OK() {
			s.emit(telemetry.MoneyClicked, telemetry.Params{"value": cr.Value}, now)
		}

	case KindBuy:
		next, br := e.Buy(s.state, act.UpgradeID)
		s.state = next
		res.Reject, res.Amount = br.Reject, br.Cost
		if br.OK() {
			s.emit(telemetry.UpgradePurchased, telemetry.Params{
				"upgrade_id": act.UpgradeID,
				"cost":       br.Cost,
				"count":      br.NewCount,
			}, now)
		}

	case KindChooseOffer:
		next, cr := e.ChooseOffer(s.state, act.OfferID, now)
		s.state = next
		res.Reject = cr.Reject
		if cr.OK() {
			s.emit(telemetry.TemporaryUpgradeSelected, telemetry.Params{
				"offer_id":          cr.Offer.ID,
				"tag":               string(cr.Offer.Tag),
				"money_multiplier":  cr.Offer.MoneyMultiplier,
				"reputation_change": cr.Offer.ReputationChange,
				"climate_change":    cr.Offer.ClimateChange,
			}, now)
		}

	case KindAscend:
		prev := s.state.Clone()
		next, ar := e.Ascend(s.state, now)
		s.state = next
		res.Reject, res.Amount = ar.Reject, ar.StartingMoney
		if ar.OK() {
			s.requestArchive(prev, now)
			params := telemetry.Params{
				"previous_level":    ar.PreviousLevel,
				"new_level":         next.AscensionLevel,
				"starting_money":    ar.StartingMoney,
				"lifetime_earnings": next.LifetimeEarnings,
			}
			s.emit(telemetry.PlayerAscended, params, now)
			s.notify(telemetry.PlayerAscended, params)
			s.requestSave("ascension")
		}

	case KindSave:
		s.requestSave("manual")

	case KindLogout:
		// Progress is saved first; the session then drops to a fresh run and ends.
		s.requestSave("logout")
		s.emit(telemetry.UserLoggedOut, nil, now)
		s.state = e.NewState(now)
		s.ended = true
		res.Ended = true

	default:
		res.Reject = RejectBadAction
	}
	s.publish(now, true)
	return res
}

// State returns a copy of the loop-owned state. Tests only.
func (s *Session) State() game.State { return s.state.Clone() }

func (s *Session) publish(now time.Time, force bool) {
	v := BuildView(s.deps.Engine, s.userID, s.state, now)
	s.view.Store(&v)
	if !force && now.Sub(s.lastPush) < s.cfg.StatePush {
		return
	}
	s.lastPush = now
	sendLatest(s.views, v)
}

func (s *Session) notify(name telemetry.Name, params telemetry.Params) {
	select {
	case s.notices <- Notice{Name: name, Params: params}:
	default:
	}
}

func (s *Session) emit(name telemetry.Name, params telemetry.Params, now time.Time) {
	s.deps.Sink.Emit(telemetry.New(name, s.userID, now, params))
}

// requestSave hands a copy of the state to the saver. Only the newest pending save is kept.
func (s *Session) requestSave(reason string) {
	if s.deps.Store == nil {
		return
	}
	sendLatest(s.saveq, saveReq{state: s.state.Clone(), reason: reason})
}

// requestArchive queues the run that just ended. Unlike saves, archives are never
// coalesced; a full queue drops the request and logs it.
func (s *Session) requestArchive(ended game.State, now time.Time) {
	if s.deps.Archive == nil {
		return
	}
	select {
	case s.archq <- saveReq{state: ended, reason: "ascension", at: now}:
	default:
		s.deps.Logger.Printf("archive user=%s level=%d: queue full, dropped", s.userID, ended.AscensionLevel)
	}
}

func (s *Session) saver() {
	saveq, archq := s.saveq, s.archq
	for saveq != nil || archq != nil {
		select {
		case req, ok := <-saveq:
			if !ok {
				saveq = nil
				continue
			}
			s.save(req)
		case req, ok := <-archq:
			if !ok {
				archq = nil
				continue
			}
			path, err := s.deps.Archive.ArchiveRun(s.userID, req.state, req.at)
			if err != nil {
				s.deps.Logger.Printf("archive user=%s level=%d: %v", s.userID, req.state.AscensionLevel, err)
				continue
			}
			s.deps.Logger.Printf("archived run user=%s level=%d path=%s", s.userID, req.state.AscensionLevel, path)
		}
	}
}

func (s *Session) save(req saveReq) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	err := s.deps.Store.Save(ctx, s.userID, req.state)
	cancel()
	if err != nil {
		s.deps.Logger.Printf("save user=%s reason=%s: %v", s.userID, req.reason, err)
		return
	}
	s.emit(telemetry.GameSaved, telemetry.Params{
		"reason":            req.reason,
		"ascension_level":   req.state.AscensionLevel,
		"lifetime_earnings": req.state.LifetimeEarnings,
	}, s.deps.Now())
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
