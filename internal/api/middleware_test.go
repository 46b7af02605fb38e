package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// stack mounts h on pattern behind the same middleware order NewRouter uses and
// captures the JSON log output.
func stack(pattern string, h http.HandlerFunc) (http.Handler, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(ContentTypeJSON)
	r.Get(pattern, h)
	return r, &logs
}

// logRecords decodes one JSON object per log line.
func logRecords(t *testing.T, logs *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(logs.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("log line %q is not JSON: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func findRecord(records []map[string]any, msg string) map[string]any {
	for _, rec := range records {
		if rec["msg"] == msg {
			return rec
		}
	}
	return nil
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		wantError string
	}{
		{"error value", errors.New("audit db closed"), "audit db closed"},
		{"string value", "run history unavailable", "run history unavailable"},
		{"other value", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, logs := stack("/runs/{runID}", func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}

			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if body.Code != ErrCodeServerError {
				t.Errorf("code = %q, want %q", body.Code, ErrCodeServerError)
			}
			if strings.Contains(body.Description, tt.wantError) {
				t.Errorf("description %q leaks the panic value", body.Description)
			}
			headerID := rec.Header().Get(RequestIDHeader)
			if headerID == "" || body.RequestID != headerID {
				t.Errorf("request_id = %q, header = %q, want equal and non-empty", body.RequestID, headerID)
			}

			records := logRecords(t, logs)
			panicked := findRecord(records, "panic recovered")
			if panicked == nil {
				t.Fatalf("no panic record in %s", logs.String())
			}
			if panicked["error"] != tt.wantError {
				t.Errorf("logged error = %v, want %q", panicked["error"], tt.wantError)
			}
			if panicked["path"] != "/runs/run-1" {
				t.Errorf("logged path = %v", panicked["path"])
			}
			if access := findRecord(records, "http request"); access == nil || access["level"] != "ERROR" {
				t.Errorf("access record = %v, want an ERROR level entry", access)
			}
		})
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h, _ := stack("/chips/{sampleId}", func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chips/aabn", nil))
	t.Error("ServeHTTP returned normally")
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"chip served", "/chips/aabn", http.StatusOK, "INFO"},
		{"unknown chip", "/chips/missing", http.StatusNotFound, "WARN"},
		{"bad sample id", "/chips/-", http.StatusBadRequest, "WARN"},
		{"store failure", "/chips/broken", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, logs := stack("/chips/{sampleId}", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, "{}")
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("User-Agent", "chipper-test")
			h.ServeHTTP(httptest.NewRecorder(), req)

			access := findRecord(logRecords(t, logs), "http request")
			if access == nil {
				t.Fatalf("no access record in %s", logs.String())
			}
			if access["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", access["level"], tt.wantLevel)
			}
			if access["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", access["status"], tt.status)
			}
			if access["path"] != tt.path || access["method"] != http.MethodGet {
				t.Errorf("logged %v %v, want GET %s", access["method"], access["path"], tt.path)
			}
			if access["bytes"] != float64(2) {
				t.Errorf("bytes = %v, want 2", access["bytes"])
			}
			if access["user_agent"] != "chipper-test" {
				t.Errorf("user_agent = %v", access["user_agent"])
			}
			if id, _ := access["request_id"].(string); id == "" {
				t.Error("access record has no request_id")
			}
			if _, ok := access["duration"]; !ok {
				t.Error("access record has no duration")
			}
		})
	}
}

func TestRequestLogger_ImplicitOK(t *testing.T) {
	h, logs := stack("/runs", func(http.ResponseWriter, *http.Request) {})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs", nil))

	access := findRecord(logRecords(t, logs), "http request")
	if access == nil || access["status"] != float64(http.StatusOK) {
		t.Errorf("access record = %v, want status 200", access)
	}
}

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		want        string
	}{
		{"run listing keeps the default", "/runs", "", "application/json"},
		{"chip overrides the default", "/chips/aabn", "image/png", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if got := rec.Header().Get("Content-Type"); got != tt.want {
				t.Errorf("Content-Type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h, _ := stack("/runs/{runID}/failures", func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/run-1/failures", nil))
		if seen == "" {
			t.Fatal("handler saw no request id")
		}
		if got := rec.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("%s = %q, want %q", RequestIDHeader, got, seen)
		}
	})

	t.Run("propagated from caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/runs/run-2/failures", nil)
		req.Header.Set(middleware.RequestIDHeader, "batch-7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "batch-7" {
			t.Errorf("handler saw %q, want batch-7", seen)
		}
		if got := rec.Header().Get(RequestIDHeader); got != "batch-7" {
			t.Errorf("%s = %q, want batch-7", RequestIDHeader, got)
		}
	})

	t.Run("absent without middleware", func(t *testing.T) {
		if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/runs", nil).Context()); got != "" {
			t.Errorf("GetRequestID() = %q, want empty", got)
		}
	})
}
