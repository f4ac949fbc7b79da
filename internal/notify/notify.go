// Package notify carries one-shot user notifications ("toasts") from the
// dashboard actions to whatever front end is showing them.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of a Toast.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Toast is a single notification.
type Toast struct {
	Level       Level
	Title       string
	Description string
	At          time.Time
}

// Notifier receives toasts. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

func (f Func) Notify(t Toast) { f(t) }

// Discard drops every toast.
var Discard Notifier = Func(func(Toast) {})

// Success and Error build toasts stamped with the current time.
func Success(title, desc string) Toast { return Toast{LevelSuccess, title, desc, time.Now()} }
func Error(title, desc string) Toast   { return Toast{LevelError, title, desc, time.Now()} }

// Feed keeps the most recent toasts, newest last.
type Feed struct {
	mu     sync.Mutex
	max    int
	toasts []Toast
}

// NewFeed returns a Feed holding at most max toasts (max <= 0 keeps all).
func NewFeed(max int) *Feed {
	return &Feed{max: max}
}

func (f *Feed) Notify(t Toast) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, t)
	if f.max > 0 && len(f.toasts) > f.max {
		f.toasts = f.toasts[len(f.toasts)-f.max:]
	}
}

// Toasts returns a copy of the kept toasts.
func (f *Feed) Toasts() []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Toast(nil), f.toasts...)
}

// Logger writes toasts to a slog.Logger; errors at error level.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Notify(t Toast) {
	level := slog.LevelInfo
	if t.Level == LevelError {
		level = slog.LevelError
	}
	l.Log.Log(context.Background(), level, t.Title, "detail", t.Description)
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
)

// Printer writes toasts as single lines to W, e.g. stdout of a command.
type Printer struct {
	mu sync.Mutex
	W  io.Writer
}

func (p *Printer) Notify(t Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.W, FormatLine(t))
}

// FormatLine renders t as "<mark> Title: Description".
func FormatLine(t Toast) string {
	var mark string
	switch t.Level {
	case LevelSuccess:
		mark = successStyle.Render("✔")
	case LevelError:
		mark = errorStyle.Render("✘")
	default:
		mark = infoStyle.Render("•")
	}
	if t.Description == "" {
		return mark + " " + t.Title
	}
	return mark + " " + t.Title + ": " + t.Description
}
