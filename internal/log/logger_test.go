// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func capture(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"loud", LevelInfo, false},
		{"", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)
	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn were logged:\n%s", out)
	}
	if !strings.Contains(out, "[WARN ] shown 3") || !strings.Contains(out, "[ERROR] shown 4") {
		t.Errorf("missing messages:\n%s", out)
	}
}

func TestNamed(t *testing.T) {
	buf := capture(t, LevelDebug)
	Named("udp").Debugf("sent %d", 7)
	if !strings.Contains(buf.String(), "[DEBUG] udp: sent 7") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLimited(t *testing.T) {
	buf := capture(t, LevelInfo)
	l := Named("chain").Limited(time.Hour)
	for i := range 5 {
		l.Warnf("problem %d", i)
	}
	if n := strings.Count(buf.String(), "problem"); n != 1 {
		t.Errorf("%d lines logged within the interval, want 1", n)
	}
}

func TestLimiterReportsSuppressed(t *testing.T) {
	r := &limiter{interval: int64(time.Second)}
	base := time.Now().UnixNano()
	if _, ok := r.allow(base); !ok {
		t.Fatal("first event dropped")
	}
	for i := range 3 {
		if _, ok := r.allow(base + int64(i+1)*int64(time.Millisecond)); ok {
			t.Fatal("event inside the interval passed")
		}
	}
	dropped, ok := r.allow(base + int64(2*time.Second))
	if !ok || dropped != 3 {
		t.Errorf("after interval: dropped %d, ok %v", dropped, ok)
	}
}

func TestLimitedIgnoresDisabledLevels(t *testing.T) {
	buf := capture(t, LevelError)
	l := Named("x").Limited(time.Hour)
	l.Debugf("filtered")
	l.Errorf("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("filtered message consumed the limiter: %q", buf.String())
	}
}
