package testutil

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// LogBuffer captures log lines written through a slog logger backed by zerolog.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether any captured line contains s.
func (b *LogBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// Logger returns a debug level slog logger writing JSON lines into a new buffer.
func Logger() (*slog.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	zl := zerolog.New(buf).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: slog.LevelDebug})), buf
}
