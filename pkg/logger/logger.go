package logger

import (
	"bytes"
	"log/slog"
	"os"
)

// Can be one of:
//   - Prod
//   - Dev
//   - Staging
type Enviroment int

const (
	_ Enviroment = iota
	Prod
	Dev
	Staging
)

// NewLogger creates a new slog.Logger writing JSON to stdout. addSource
// controls whether the source file:line is attached to every record.
func NewLogger(env Enviroment, addSource bool) *slog.Logger {
	var level slog.Level

	switch env {
	case Prod, Staging:
		level = slog.LevelInfo
	case Dev:
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: addSource,
		Level:     level,
	})
	return slog.New(h)
}

// NewTestLogger returns a text-handler logger writing into an in-memory
// buffer, along with the buffer itself, for use in tests that want to
// assert on log output without touching stdout.
func NewTestLogger() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &buf, slog.New(h)
}

// ErrAttr formats err as a slog.Attr under the conventional "error" key.
func ErrAttr(err error) slog.Attr {
	return slog.String("error", err.Error())
}
