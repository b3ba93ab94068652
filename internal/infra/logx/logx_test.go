package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRedactionInStdlogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)
	RegisterSecret("secret123")

	_, err := w.Write([]byte("this contains secret123 and should be redacted\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "secret123") {
		t.Fatalf("expected secret to be redacted, got: %s", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Fatalf("expected [REDACTED] marker, got: %s", got)
	}
}

func TestTruncationWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)

	long := strings.Repeat("a", 6000)
	if _, err := w.Write([]byte(long + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if !strings.Contains(buf.String(), "truncated") {
		t.Fatalf("expected truncation indicator, got: %s", buf.String())
	}
}

func TestNoTruncationWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(true)
	defer SetVerbose(false)

	long := strings.Repeat("b", 4000)
	if _, err := w.Write([]byte(long + "\n")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if strings.Contains(buf.String(), "truncated") {
		t.Fatalf("did not expect truncation, got: %s", buf.String())
	}
}

func TestFieldsAreStructured(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetMinLevel(LevelDebug)
	RegisterSecret("tok-xyz")

	Warnw("publish failed", "owner", "42", "err", errors.New("header tok-xyz rejected"), "dangling")

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if e.Level != "warn" || e.Msg != "publish failed" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Fields["owner"] != "42" {
		t.Fatalf("owner field = %v", e.Fields["owner"])
	}
	if got := e.Fields["err"]; got != "header [REDACTED] rejected" {
		t.Fatalf("err field = %v", got)
	}
	if _, ok := e.Fields["dangling"]; !ok {
		t.Fatalf("expected dangling key to be kept")
	}
}

func TestMinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetMinLevel(LevelError)
	defer SetMinLevel(LevelWarn)

	Infof("quiet %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below min level, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "WARN": LevelWarn, "error": LevelError, "": LevelInfo, "nope": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
