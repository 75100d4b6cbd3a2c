// Package notice carries transient, non-blocking notifications from the
// editing core to whatever shows them (a toast, a log line, a websocket).
package notice

import (
	"context"
	"log/slog"
	"time"

	"wedsite/internal/errcode"
)

type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

// Notice 是一条全局提示；Code 沿用 errcode 中的业务码。
type Notice struct {
	Level   Level     `json:"level"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier must return promptly; it is called from the save path.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Log writes notices to a logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case Warn:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, n.Message, slog.Int("code", n.Code))
}

// Channel delivers notices to a buffered channel and drops them when the
// reader falls behind.
type Channel struct {
	C chan Notice
}

// NewChannel creates a channel notifier with the given buffer.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 16
	}
	return &Channel{C: make(chan Notice, size)}
}

func (c *Channel) Notify(n Notice) {
	select {
	case c.C <- n:
	default:
	}
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// Saved builds the notice for a successful save.
func Saved(at time.Time) Notice {
	return Notice{Level: Info, Code: errcode.OK, Message: "All changes saved", At: at}
}

// Failed builds the notice for a failed save.
func Failed(code int, msg string, at time.Time) Notice {
	return Notice{Level: Error, Code: code, Message: msg, At: at}
}
