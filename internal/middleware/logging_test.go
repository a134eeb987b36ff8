package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLog(t *testing.T, handler http.Handler, req *http.Request) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	wrapped := NewLoggingMiddleware(logger)(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("log line is not JSON: %v: %s", err, line)
		}
		events = append(events, event)
	}
	return events
}

func TestLogging_EmitsStartAndCompletionEvents(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
	req.Header.Set("User-Agent", "test-agent")
	events := captureLog(t, handler, req)

	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0]["msg"] != "request_received" {
		t.Errorf("first event = %v", events[0]["msg"])
	}
	if events[1]["msg"] != "request_completed" {
		t.Errorf("second event = %v", events[1]["msg"])
	}

	// 両イベントは同一の相関IDで紐づく
	id0, _ := events[0]["request_id"].(string)
	id1, _ := events[1]["request_id"].(string)
	if id0 == "" || id0 != id1 {
		t.Errorf("request_id mismatch: %q vs %q", id0, id1)
	}

	if events[1]["status"].(float64) != 200 {
		t.Errorf("status = %v", events[1]["status"])
	}
	if events[1]["response_size_bytes"].(float64) != 5 {
		t.Errorf("response_size_bytes = %v, want 5", events[1]["response_size_bytes"])
	}
	if _, ok := events[1]["latency_ms"]; !ok {
		t.Error("latency_ms missing")
	}
}

func TestLogging_TruncatesLongUserAgent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", strings.Repeat("x", 300))
	events := captureLog(t, handler, req)

	ua, _ := events[0]["user_agent"].(string)
	if len(ua) != userAgentMaxLen {
		t.Errorf("user_agent length = %d, want %d", len(ua), userAgentMaxLen)
	}
}

func TestLogging_ContentLengthPreferredForStreamedResponses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ストリーミング応答を模す: Content-Lengthを設定し本文は一部のみ
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/calibre/cover/4", nil)
	events := captureLog(t, handler, req)

	if events[1]["response_size_bytes"].(float64) != 1048576 {
		t.Errorf("response_size_bytes = %v, want Content-Length value", events[1]["response_size_bytes"])
	}
}

func TestLogging_LevelEscalation(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		events := captureLog(t, handler, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := events[1]["level"]; got != tt.wantLevel {
			t.Errorf("status %d: level = %v, want %s", tt.status, got, tt.wantLevel)
		}
	}
}

func TestLogging_IncludesUserIDResolvedDownstream(t *testing.T) {
	// セッションミドルウェアはロギングの内側で動くため、
	// ユーザーIDは書き戻し経由で完了ログに到達する。
	handler := NewSessionMiddleware(newResolver())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	events := captureLog(t, handler, req)

	if events[1]["user_id"].(float64) != 7 {
		t.Errorf("user_id = %v, want 7", events[1]["user_id"])
	}
}

func TestLogging_OmitsUserIDWhenAnonymous(t *testing.T) {
	handler := NewOptionalSessionMiddleware(newResolver())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	events := captureLog(t, handler, httptest.NewRequest(http.MethodGet, "/api/content", nil))

	if _, ok := events[1]["user_id"]; ok {
		t.Errorf("user_id present in anonymous request log: %v", events[1]["user_id"])
	}
}
