// Package profiler implements a minimal scope-timer/counter facility: a
// Chrome Tracing (chrome://tracing, "Trace Event Format") JSON writer for
// wall-clock spans, plus a bounded ring of named duration samples the host
// application can poll without a trace file open. It deliberately stops
// short of anything resembling a rendering or windowing profiler; spans are
// opaque named durations, nothing more.
package profiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Microtime returns the current time as microseconds since the Unix epoch,
// the unit every Session timestamp and span duration is expressed in.
func Microtime() int64 {
	return time.Now().UnixMicro()
}

// Session is a Chrome Tracing session: while active, WriteSpan appends one
// trace event per call to the open file. Only one session may be active at
// a time, matching the original engine's single global instrumentor.
type Session struct {
	mu      sync.Mutex
	file    *os.File
	name    string
	count   int
	active  bool
	log     zerolog.Logger
}

// NewSession creates an inactive session. Begin must be called before
// WriteSpan has any effect.
func NewSession(log zerolog.Logger) *Session {
	return &Session{log: log, name: "None"}
}

// Begin opens path and starts writing a trace; any session already
// active is ended first. name is recorded for logging only.
func (s *Session) Begin(name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.endLocked()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error().Err(err).Str("dir", dir).Msg("profiler: failed to create trace directory")
			return fmt.Errorf("profiler: creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("profiler: failed to open trace file")
		return fmt.Errorf("profiler: opening %s: %w", path, err)
	}

	f.WriteString(`{"otherData": {},"traceEvents":[`)

	s.file = f
	s.name = name
	s.count = 0
	s.active = true
	s.log.Info().Str("session", name).Str("path", path).Msg("profiler: session started")
	return nil
}

// End closes the active session, if any, finishing the trace file.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *Session) endLocked() {
	if !s.active {
		return
	}
	s.file.WriteString("]}")
	s.file.Close()
	s.file = nil
	s.active = false
	s.count = 0
	s.log.Info().Str("session", s.name).Msg("profiler: session ended")
}

// WriteSpan appends one trace event covering [startUS, endUS) on threadID.
// A no-op when no session is active, so callers can unconditionally time
// scopes without checking Active first.
func (s *Session) WriteSpan(name string, startUS, endUS int64, threadID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}

	if s.count > 0 {
		s.file.WriteString(",")
	}
	s.count++

	safeName := strings.ReplaceAll(name, `"`, `'`)
	fmt.Fprintf(s.file,
		`{"cat":"function","dur":%d,"name":"%s","ph":"X","pid":0,"tid":%d,"ts":%d}`,
		endUS-startUS, safeName, threadID, startUS)
}

// Active reports whether a trace file is currently open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
