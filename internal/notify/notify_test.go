package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_KeepsNewest(t *testing.T) {
	f := NewFeed(2)
	f.Notify(Success("one", ""))
	f.Notify(Error("two", "boom"))
	f.Notify(Success("three", ""))

	toasts := f.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "two", toasts[0].Title)
	assert.Equal(t, "three", toasts[1].Title)

	// The returned slice is a copy.
	toasts[0].Title = "changed"
	assert.Equal(t, "two", f.Toasts()[0].Title)
}

func TestFeed_Unbounded(t *testing.T) {
	f := NewFeed(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Notify(Success("ok", ""))
		}()
	}
	wg.Wait()
	assert.Len(t, f.Toasts(), 50)
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(Error("Failed to create VM", "CPU count must be between 1 and 32"))
	assert.True(t, strings.HasSuffix(line, "Failed to create VM: CPU count must be between 1 and 32"), line)

	line = FormatLine(Success("Logged out", ""))
	assert.True(t, strings.HasSuffix(line, " Logged out"), line)
	assert.NotContains(t, line, ":")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	p.Notify(Success("VMs refreshed", "Loaded 3 virtual machines"))
	p.Notify(Error("Failed to load VMs", "HTTP 502: Bad Gateway"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "VMs refreshed: Loaded 3 virtual machines")
	assert.Contains(t, lines[1], "Failed to load VMs: HTTP 502: Bad Gateway")
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{Log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))}

	l.Notify(Success("VM Creation Started", "web-01"))
	assert.Empty(t, buf.String(), "success toasts log at info")

	l.Notify(Error("Failed to delete VM", "VM not found"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `msg="Failed to delete VM"`)
	assert.Contains(t, buf.String(), `detail="VM not found"`)
}

func TestDiscardAndFunc(t *testing.T) {
	Discard.Notify(Error("ignored", ""))

	var got []Toast
	Func(func(t Toast) { got = append(got, t) }).Notify(Success("hi", ""))
	require.Len(t, got, 1)
	assert.Equal(t, LevelSuccess, got[0].Level)
	assert.Equal(t, "success", got[0].Level.String())
	assert.Equal(t, "info", LevelInfo.String())
}
