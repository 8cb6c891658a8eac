// Package notify delivers user-facing messages (the toasts of the page
// layer).
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Message struct {
	Level Level     `json:"level"`
	Title string    `json:"title"`
	Text  string    `json:"text,omitempty"`
	At    time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, m Message)
}

func Error(title, text string) Message   { return Message{Level: LevelError, Title: title, Text: text} }
func Warning(title, text string) Message { return Message{Level: LevelWarning, Title: title, Text: text} }
func Success(title, text string) Message { return Message{Level: LevelSuccess, Title: title, Text: text} }

// Recorder queues messages until the page layer drains them.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	max  int
	now  func() time.Time
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 100
	}
	return &Recorder{max: max, now: time.Now}
}

func (r *Recorder) Notify(_ context.Context, m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.At.IsZero() {
		m.At = r.now()
	}
	r.msgs = append(r.msgs, m)
	if len(r.msgs) > r.max {
		r.msgs = r.msgs[len(r.msgs)-r.max:]
	}
}

// Drain returns queued messages oldest first and empties the queue.
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type logNotifier struct{ l *log.Logger }

// NewLog writes messages to a gommon logger.
func NewLog(l *log.Logger) Notifier { return &logNotifier{l: l} }

func (n *logNotifier) Notify(_ context.Context, m Message) {
	switch m.Level {
	case LevelError:
		n.l.Errorf("[notify] %s: %s", m.Title, m.Text)
	case LevelWarning:
		n.l.Warnf("[notify] %s: %s", m.Title, m.Text)
	default:
		n.l.Infof("[notify] %s: %s", m.Title, m.Text)
	}
}

// Multi fans a message out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, msg)
		}
	}
}
