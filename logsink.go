package umux

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// LogSink is a per-session append-only JSONL log (spec.md §6). Implementations
// must not block the session's event dispatch for long; failures are
// dropped, never surfaced (spec.md §7: "JSONL write failure (drop the
// record)").
type LogSink interface {
	LogSpawn(sessionID, name, cwd string)
	LogOutput(sessionID string, data []byte)
	LogInputText(sessionID, data string)
	LogInputKey(sessionID, key string)
	LogInputKeys(sessionID string, keys []string)
	LogTerminalQueryResponse(sessionID, note string)
	LogExit(sessionID string, exitCode int)
	Close() error
}

// NopLogSink discards every record.
type NopLogSink struct{}

func (NopLogSink) LogSpawn(string, string, string)         {}
func (NopLogSink) LogOutput(string, []byte)                {}
func (NopLogSink) LogInputText(string, string)             {}
func (NopLogSink) LogInputKey(string, string)              {}
func (NopLogSink) LogInputKeys(string, []string)           {}
func (NopLogSink) LogTerminalQueryResponse(string, string) {}
func (NopLogSink) LogExit(string, int)                     {}
func (NopLogSink) Close() error                            { return nil }

// JSONLFileSink writes one JSON object per line to `<dir>/YYYY-MM-DD_<sessionId>.log.jsonl`
// (spec.md §6), built incrementally with github.com/tidwall/sjson so the
// emitter never needs a struct-tagged record type per line shape.
type JSONLFileSink struct {
	mu                   sync.Mutex
	file                 *os.File
	logger               Logger
	inputLoggingDisabled bool
}

// NewJSONLFileSink opens (creating if needed) the log file for one session.
func NewJSONLFileSink(dir, sessionID string, inputLoggingDisabled bool, logger Logger) (*JSONLFileSink, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError(KindLifecycle, "creating log directory", err)
	}
	name := fmt.Sprintf("%s_%s.log.jsonl", time.Now().Format("2006-01-02"), sessionID)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, wrapError(KindLifecycle, "opening log file", err)
	}
	return &JSONLFileSink{file: f, logger: logger, inputLoggingDisabled: inputLoggingDisabled}, nil
}

func (s *JSONLFileSink) writeLine(json string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.WriteString(json + "\n"); err != nil {
		s.logger.Warn("dropping log record, write failed", "error", err)
	}
}

func (s *JSONLFileSink) LogSpawn(sessionID, name, cwd string) {
	json, err := sjson.Set("{}", "ts", time.Now().UnixMilli())
	if err != nil {
		return
	}
	json, _ = sjson.Set(json, "event", "spawn")
	json, _ = sjson.Set(json, "sessionId", sessionID)
	json, _ = sjson.Set(json, "name", name)
	json, _ = sjson.Set(json, "cwd", cwd)
	s.writeLine(json)
}

func (s *JSONLFileSink) LogOutput(sessionID string, data []byte) {
	json, err := sjson.Set("{}", "ts", time.Now().UnixMilli())
	if err != nil {
		return
	}
	json, _ = sjson.Set(json, "sessionId", sessionID)
	json, _ = sjson.Set(json, "stream", "output")
	json, _ = sjson.Set(json, "data", string(data))
	s.writeLine(json)
}

func (s *JSONLFileSink) LogInputText(sessionID, data string) {
	if s.inputLoggingDisabled {
		return
	}
	json := s.inputRecord(sessionID, "text")
	json, _ = sjson.Set(json, "data", data)
	s.writeLine(json)
}

func (s *JSONLFileSink) LogInputKey(sessionID, key string) {
	if s.inputLoggingDisabled {
		return
	}
	json := s.inputRecord(sessionID, "key")
	json, _ = sjson.Set(json, "key", key)
	s.writeLine(json)
}

func (s *JSONLFileSink) LogInputKeys(sessionID string, keys []string) {
	if s.inputLoggingDisabled {
		return
	}
	json := s.inputRecord(sessionID, "keys")
	json, _ = sjson.Set(json, "keys", keys)
	s.writeLine(json)
}

func (s *JSONLFileSink) LogTerminalQueryResponse(sessionID, note string) {
	if s.inputLoggingDisabled {
		return
	}
	json := s.inputRecord(sessionID, "terminal_query_response")
	json, _ = sjson.Set(json, "note", note)
	s.writeLine(json)
}

func (s *JSONLFileSink) inputRecord(sessionID, kind string) string {
	json, _ := sjson.Set("{}", "ts", time.Now().UnixMilli())
	json, _ = sjson.Set(json, "sessionId", sessionID)
	json, _ = sjson.Set(json, "stream", "input")
	json, _ = sjson.Set(json, "kind", kind)
	return json
}

func (s *JSONLFileSink) LogExit(sessionID string, exitCode int) {
	json, err := sjson.Set("{}", "ts", time.Now().UnixMilli())
	if err != nil {
		return
	}
	json, _ = sjson.Set(json, "event", "exit")
	json, _ = sjson.Set(json, "sessionId", sessionID)
	json, _ = sjson.Set(json, "exitCode", exitCode)
	s.writeLine(json)
}

func (s *JSONLFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
