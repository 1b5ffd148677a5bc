package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"capclicker.app/internal/telemetry"
)

type Config struct {
	Endpoint      string
	Token         string
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	QueueSize     int
	Logger        *log.Logger
}

// Forwarder ships telemetry events to a remote ingest endpoint in gzip'd JSON batches.
// Emit never blocks; events are dropped when the queue is full.
type Forwarder struct {
	cfg        Config
	httpClient *http.Client

	ch   chan telemetry.Event
	wg   sync.WaitGroup
	once sync.Once

	// mu guards ch against a send racing Close.
	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type batchBody struct {
	Source string            `json:"source,omitempty"`
	SentAt string            `json:"sent_at"`
	Events []telemetry.Event `json:"events"`
}

func Open(cfg Config) (*Forwarder, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, fmt.Errorf("ingest endpoint must be http(s): %s", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.Source) == "" {
		cfg.Source = "capclicker"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32768
	}

	f := &Forwarder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan telemetry.Event, cfg.QueueSize),
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loop()
	}()

	return f, nil
}

// Close flushes what is queued and stops the sender.
func (f *Forwarder) Close() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.ch)
		f.mu.Unlock()
		f.wg.Wait()
	})
	return nil
}

func (f *Forwarder) Emit(ev telemetry.Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	default:
		if n := f.dropped.Add(1); n == 1 || n%1000 == 0 {
			f.printf("ingest queue full; dropped=%d", n)
		}
	}
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	SentTotal     uint64
	DroppedTotal  uint64
	FailedTotal   uint64
}

func (f *Forwarder) Stats() Stats {
	if f == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(f.ch),
		QueueCapacity: cap(f.ch),
		SentTotal:     f.sent.Load(),
		DroppedTotal:  f.dropped.Load(),
		FailedTotal:   f.failed.Load(),
	}
}

func (f *Forwarder) loop() {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]telemetry.Event, 0, f.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := f.sendBatch(batch); err != nil {
			f.failed.Add(uint64(len(batch)))
			f.printf("ingest flush failed batch=%d err=%v", len(batch), err)
		} else {
			f.sent.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-f.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= f.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (f *Forwarder) sendBatch(events []telemetry.Event) error {
	buf, err := encodeBatch(batchBody{
		Source: f.cfg.Source,
		SentAt: time.Now().UTC().Format(time.RFC3339Nano),
		Events: events,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, f.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		req.Header.Set("content-encoding", "gzip")
		if f.cfg.Token != "" {
			req.Header.Set("authorization", "Bearer "+f.cfg.Token)
		}

		resp, err := f.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			// Client errors will not succeed on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return err
			}
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func encodeBatch(body batchBody) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(body); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Forwarder) printf(format string, args ...any) {
	if f != nil && f.cfg.Logger != nil {
		f.cfg.Logger.Printf(format, args...)
	}
}
