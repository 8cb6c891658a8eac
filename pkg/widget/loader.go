// Package widget owns the one-time load of the external map script that the
// itinerary page embeds.
package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

var logger = log.New("widget")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

var ErrDisabled = errors.New("widget: no script url configured")

// Loader fetches the script at most once. Every caller of Ready waits on the
// same load; a failed load is not retried until Reset.
type Loader struct {
	url   string
	httpc *http.Client

	mu     sync.Mutex
	once   *sync.Once
	done   chan struct{}
	script []byte
	err    error
}

func NewLoader(url string, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := &Loader{url: url, httpc: &http.Client{Timeout: timeout}}
	l.reset()
	return l
}

func (l *Loader) reset() {
	l.once = &sync.Once{}
	l.done = make(chan struct{})
	l.script, l.err = nil, nil
}

// Start kicks off the load in the background if it has not begun yet.
func (l *Loader) Start() {
	l.mu.Lock()
	once, done := l.once, l.done
	l.mu.Unlock()
	once.Do(func() { go l.load(done) })
}

func (l *Loader) load(done chan struct{}) {
	defer close(done)
	script, err := l.fetch()
	l.mu.Lock()
	l.script, l.err = script, err
	l.mu.Unlock()
	if err != nil {
		logger.Warnf("[widget] map script load failed: %v", err)
		return
	}
	logger.Infof("[widget] map script loaded (%d bytes)", len(script))
}

func (l *Loader) fetch() ([]byte, error) {
	if l.url == "" {
		return nil, ErrDisabled
	}
	resp, err := l.httpc.Get(l.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("widget: script status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// Ready blocks until the script is loaded, the load fails, or ctx ends.
func (l *Loader) Ready(ctx context.Context) error {
	l.Start()
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	select {
	case <-done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Script returns the loaded script, or nil when not ready.
func (l *Loader) Script() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.script
}

// Reset forgets a finished load so the next Ready fetches again. It is a
// no-op while a load is still running.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		l.reset()
	default:
	}
}
