package dispatch

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/velmie/jobrelay/job"
)

type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
	Header   http.Header
}

// webhookServer answers /status/<code> with that code and records every request.
type webhookServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newWebhookServer(t *testing.T) *webhookServer {
	t.Helper()

	s := &webhookServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Body:     string(body),
			Header:   r.Header.Clone(),
		})
		s.mu.Unlock()

		code := http.StatusOK
		if raw, ok := strings.CutPrefix(r.URL.Path, "/status/"); ok {
			if parsed, err := strconv.Atoi(raw); err == nil {
				code = parsed
			}
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *webhookServer) Requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]recordedRequest(nil), s.requests...)
}

func (s *webhookServer) statusURL(code int) string {
	return fmt.Sprintf("%s/status/%d", s.URL, code)
}

func testRegistry(s *webhookServer) *job.Registry {
	ok := s.statusURL(http.StatusOK)
	fail := s.statusURL(http.StatusInternalServerError)

	return job.NewRegistry(
		job.Definition{Name: "no-input", Method: "get", URL: ok, LogSuffix: "test"},
		job.Definition{
			Name:         "mixed",
			Method:       "post",
			URL:          ok,
			QueryKeys:    []string{"query_url_key", "another_query_key"},
			BodyKeys:     []string{"json_1", "json_2", "json_3"},
			RequiredKeys: []string{"query_url_key", "json_1", "json_2"},
			LogSuffix:    "test",
		},
		job.Definition{Name: "failing", URL: fail},
		job.Definition{Name: "wrong-status", URL: ok, SuccessStatus: http.StatusCreated},
		job.Definition{Name: "with-callbacks", URL: ok, OnStart: "no-input", OnSuccess: "no-input", OnFail: "no-input"},
		job.Definition{Name: "with-onfail", URL: ok, SuccessStatus: http.StatusCreated, OnFail: "no-input"},
		job.Definition{Name: "failing-onstart", URL: ok, OnStart: "failing", OnFail: "no-input"},
		job.Definition{Name: "failing-onsuccess", URL: ok, OnSuccess: "failing", OnFail: "no-input"},
		job.Definition{Name: "failing-onfail", URL: fail, OnFail: "failing"},
		job.Definition{Name: "broken-callbacks", URL: ok, OnSuccess: "chain-middle", OnFail: "undefined-job-name"},
		job.Definition{Name: "chain-start", URL: ok, OnSuccess: "chain-middle"},
		job.Definition{Name: "chain-middle", URL: ok, OnSuccess: "chain-end"},
		job.Definition{Name: "chain-end", URL: ok},
		job.Definition{Name: "cycle-a", URL: ok, OnSuccess: "cycle-b"},
		job.Definition{Name: "cycle-b", URL: ok, OnFail: "cycle-a"},
	)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (e logEntry) value(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1], true
		}
	}

	return nil, false
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}

	return out
}
