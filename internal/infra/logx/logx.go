package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "debug"
	}
}

// ParseLevel maps a config string onto a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

const maxFieldLen = 2 * 1024

var (
	mu       sync.RWMutex
	minLevel           = LevelWarn
	out      io.Writer = io.Discard
	secrets            = make([]string, 0)
	verbose  bool
)

// SetOutput sets the destination for logs. A nil writer discards output.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetMinLevel sets the minimum level to emit.
func SetMinLevel(l Level) { mu.Lock(); minLevel = l; mu.Unlock() }

// SetVerbose toggles verbose output (no truncation of large fields/messages).
func SetVerbose(v bool) { mu.Lock(); verbose = v; mu.Unlock() }

// Verbose returns whether verbose output is enabled.
func Verbose() bool { mu.RLock(); defer mu.RUnlock(); return verbose }

// RegisterSecret adds a string to be redacted in outputs. The admin
// credential is registered here as soon as it is known.
func RegisterSecret(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	mu.Lock()
	secrets = append(secrets, s)
	mu.Unlock()
}

// StdlogWriter wraps writes as structured JSON lines at a fixed level so the
// standard library logger (and tea.LogToFile) end up in the same stream.
func StdlogWriter(level Level, w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	return &stdlogWriter{level: level, w: w}
}

type stdlogWriter struct {
	level Level
	w     io.Writer
}

func (sw *stdlogWriter) Write(p []byte) (int, error) {
	written := 0
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if err := emit(sw.w, sw.level, string(line), nil); err != nil {
			return written, err
		}
		written += len(line) + 1
	}
	return len(p), nil
}

func writer() io.Writer { mu.RLock(); defer mu.RUnlock(); return out }

func Debugf(format string, args ...any) { _ = emit(writer(), LevelDebug, fmt.Sprintf(format, args...), nil) }
func Infof(format string, args ...any)  { _ = emit(writer(), LevelInfo, fmt.Sprintf(format, args...), nil) }
func Warnf(format string, args ...any)  { _ = emit(writer(), LevelWarn, fmt.Sprintf(format, args...), nil) }
func Errorf(format string, args ...any) { _ = emit(writer(), LevelError, fmt.Sprintf(format, args...), nil) }

// Debugw logs msg with alternating key/value pairs as structured fields.
func Debugw(msg string, kv ...any) { _ = emit(writer(), LevelDebug, msg, fieldsOf(kv)) }

// Infow logs msg with alternating key/value pairs as structured fields.
func Infow(msg string, kv ...any) { _ = emit(writer(), LevelInfo, msg, fieldsOf(kv)) }

// Warnw logs msg with alternating key/value pairs as structured fields.
func Warnw(msg string, kv ...any) { _ = emit(writer(), LevelWarn, msg, fieldsOf(kv)) }

// Errorw logs msg with alternating key/value pairs as structured fields.
func Errorw(msg string, kv ...any) { _ = emit(writer(), LevelError, msg, fieldsOf(kv)) }

// fieldsOf turns k1, v1, k2, v2 into a map. A dangling key gets a nil value;
// non-string keys are formatted with %v.
func fieldsOf(kv []any) map[string]interface{} {
	if len(kv) == 0 {
		return nil
	}
	f := make(map[string]interface{}, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		k := fmt.Sprint(kv[i])
		var v any
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		f[k] = v
	}
	return f
}

type entry struct {
	TS     string                 `json:"ts"`
	Level  string                 `json:"level"`
	Msg    string                 `json:"msg"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

func emit(w io.Writer, lvl Level, msg string, fields map[string]interface{}) error {
	mu.RLock()
	ml := minLevel
	v := verbose
	mu.RUnlock()
	if lvl < ml {
		return nil
	}
	msg = redact(msg)
	if !v {
		msg = truncate(msg, maxFieldLen)
	}
	for k, val := range fields {
		if s, ok := val.(string); ok {
			s = redact(s)
			if !v {
				s = truncate(s, maxFieldLen)
			}
			fields[k] = s
		}
	}
	e := entry{
		TS:     time.Now().Format(time.RFC3339Nano),
		Level:  lvl.String(),
		Msg:    msg,
		Fields: fields,
	}
	b, err := json.Marshal(e)
	if err != nil {
		_, err2 := io.WriteString(w, msg+"\n")
		return err2
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func redact(s string) string {
	mu.RLock()
	defer mu.RUnlock()
	out := s
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		out = strings.ReplaceAll(out, sec, "[REDACTED]")
	}
	return out
}

// Truncate shortens s to at most limit bytes, keeping a short tail for context.
func Truncate(s string, limit int) string { return truncate(s, limit) }

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	suffix := "… [truncated]"
	if limit > len(suffix)+10 {
		head := s[:limit-len(suffix)-10]
		tail := s[len(s)-10:]
		return head + suffix + tail
	}
	return s[:limit]
}
