package snapshot

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
)

const Version = 1

var (
	ErrUnsupportedVersion = errors.New("unsupported save version")
	ErrInvalid            = errors.New("invalid save")
)

//go:embed save_v1.schema.json
var saveSchemaV1 string

var (
	schemaOnce sync.Once
	schemaV1   *jsonschema.Schema
	schemaErr  error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaV1, schemaErr = jsonschema.CompileString("save_v1.schema.json", saveSchemaV1)
	})
	return schemaV1, schemaErr
}

type Header struct {
	Version   int    `json:"version"`
	UserID    string `json:"user_id"`
	SaveID    string `json:"save_id,omitempty"`
	SavedAtMs int64  `json:"saved_at_ms"`
}

// SaveV1 is the persisted form of one player's game.State. Times are unix milliseconds
// and pending offers are stored by id.
type SaveV1 struct {
	Header Header `json:"header"`

	Money          float64 `json:"money"`
	MoneyPerSecond float64 `json:"money_per_second"`
	Reputation     float64 `json:"reputation"`
	Climate        float64 `json:"climate"`

	Upgrades map[string]int `json:"upgrades"`

	LastTickMs       int64   `json:"last_tick_ms"`
	AscensionLevel   int     `json:"ascension_level"`
	LifetimeEarnings float64 `json:"lifetime_earnings"`
	CanAscend        bool    `json:"can_ascend"`

	PendingOffers       []string `json:"pending_offers"`
	LastOfferAtMs       int64    `json:"last_offer_at_ms"`
	AwaitingOfferChoice bool     `json:"awaiting_offer_choice"`

	IncomeMultiplier float64 `json:"income_multiplier,omitempty"`
}

func FromState(userID string, s game.State, savedAt time.Time) SaveV1 {
	up := make(map[string]int, len(s.Upgrades))
	for id, n := range s.Upgrades {
		up[id] = n
	}
	pending := make([]string, 0, len(s.PendingOffers))
	for _, o := range s.PendingOffers {
		pending = append(pending, o.ID)
	}
	return SaveV1{
		Header: Header{
			Version:   Version,
			UserID:    userID,
			SaveID:    uuid.NewString(),
			SavedAtMs: savedAt.UnixMilli(),
		},
		Money:               s.Money,
		MoneyPerSecond:      s.MoneyPerSecond,
		Reputation:          s.Reputation,
		Climate:             s.Climate,
		Upgrades:            up,
		LastTickMs:          s.LastTick.UnixMilli(),
		AscensionLevel:      s.AscensionLevel,
		LifetimeEarnings:    s.LifetimeEarnings,
		CanAscend:           s.CanAscend,
		PendingOffers:       pending,
		LastOfferAtMs:       s.LastOfferAt.UnixMilli(),
		AwaitingOfferChoice: s.AwaitingOfferChoice,
		IncomeMultiplier:    s.IncomeMultiplier,
	}
}

// ToState rebuilds the simulation state. Pending offers carry only their id here;
// game.Engine.Adopt resolves them against the live catalog.
func (sv SaveV1) ToState() game.State {
	up := make(map[string]int, len(sv.Upgrades))
	for id, n := range sv.Upgrades {
		up[id] = n
	}
	var pending []catalogs.OfferDef
	for _, id := range sv.PendingOffers {
		pending = append(pending, catalogs.OfferDef{ID: id})
	}
	mult := sv.IncomeMultiplier
	if mult == 0 {
		mult = 1
	}
	return game.State{
		Money:               sv.Money,
		MoneyPerSecond:      sv.MoneyPerSecond,
		Reputation:          sv.Reputation,
		Climate:             sv.Climate,
		Upgrades:            up,
		LastTick:            time.UnixMilli(sv.LastTickMs),
		AscensionLevel:      sv.AscensionLevel,
		LifetimeEarnings:    sv.LifetimeEarnings,
		CanAscend:           sv.CanAscend,
		PendingOffers:       pending,
		LastOfferAt:         time.UnixMilli(sv.LastOfferAtMs),
		AwaitingOfferChoice: sv.AwaitingOfferChoice,
		IncomeMultiplier:    mult,
	}
}

func Marshal(sv SaveV1) ([]byte, error) {
	return json.Marshal(sv)
}

// Unmarshal checks the schema version, validates the document against the v1 schema
// and only then decodes it.
func Unmarshal(b []byte) (SaveV1, error) {
	var sv SaveV1
	var probe struct {
		Header *Header `json:"header"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return sv, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if probe.Header == nil {
		return sv, fmt.Errorf("%w: missing header", ErrInvalid)
	}
	if probe.Header.Version != Version {
		return sv, fmt.Errorf("%w: %d", ErrUnsupportedVersion, probe.Header.Version)
	}
	if err := Validate(b); err != nil {
		return sv, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sv); err != nil {
		return sv, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return sv, nil
}

func Validate(b []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile save schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Write stores a save as zstd: one JSON header line, then the full document.
func Write(path string, sv SaveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeTo(f, sv); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeTo(w io.Writer, sv SaveV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	hb, err := json.Marshal(sv.Header)
	if err != nil {
		return err
	}
	body, err := Marshal(sv)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func Read(path string) (SaveV1, error) {
	var sv SaveV1
	_, br, closeFn, err := open(path)
	if err != nil {
		return sv, err
	}
	defer closeFn()
	body, err := io.ReadAll(br)
	if err != nil {
		return sv, err
	}
	return Unmarshal(body)
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	h, _, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	closeFn()
	return h, nil
}

func open(path string) (Header, *bufio.Reader, func(), error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return h, nil, nil, err
	}
	closeFn := func() {
		dec.Close()
		_ = f.Close()
	}
	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		closeFn()
		return h, nil, nil, fmt.Errorf("%w: header: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		closeFn()
		return h, nil, nil, fmt.Errorf("%w: header: %v", ErrInvalid, err)
	}
	if h.Version != Version {
		closeFn()
		return h, nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, br, closeFn, nil
}
