package idor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/types"
)

func init() {
	color.NoColor = true
}

// objectServer serves /obj/<n> through handler and records every requested path in order.
type objectServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

func newObjectServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *objectServer {
	t.Helper()
	s := &objectServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *objectServer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func jsonHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := strings.TrimPrefix(r.URL.Path, "/obj/")
	fmt.Fprintf(w, `{"id":%s,"owner":"user-%s"}`, id, id)
}

// stopAfter lets n iterations through and then fails the gate.
func stopAfter(n int, calls *int) Gate {
	return GateFunc(func(ctx context.Context) error {
		*calls++
		if *calls >= n {
			return errors.New("operator gone")
		}
		return nil
	})
}

func newTestEnumerator(t *testing.T, endpoint string, gate Gate, out *bytes.Buffer) *Enumerator {
	t.Helper()
	client, err := httpclient.New(httpclient.DefaultConfig())
	require.NoError(t, err)

	return NewEnumerator(EnumeratorConfig{Endpoint: endpoint, Selector: "id", RunID: "run-test"}, Dependencies{
		Client: client,
		Gate:   gate,
		Output: out,
	})
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		endpoint string
		index    int64
		want     string
	}{
		{"http://x/obj/", 1, "http://x/obj/1"},
		{"http://x/obj", 1, "http://x/obj1"},
		{"http://x/obj?id=", 42, "http://x/obj?id=42"},
		{"http://x/a b/", 7, "http://x/a b/7"},
		{"", 10, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(tt.endpoint, tt.index))
		})
	}
}

func TestEnumerator_PrintsPrettyJSON(t *testing.T) {
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"a":1}`)
	})

	var out bytes.Buffer
	calls := 0
	e := newTestEnumerator(t, server.URL+"/obj/", stopAfter(1, &calls), &out)

	err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrOperatorInput)

	want := fmt.Sprintf("Results for %s/obj/1:\n\n{\n  \"a\": 1\n}\n", server.URL)
	assert.Equal(t, want, out.String())
}

func TestEnumerator_IndexIncrementsByOne(t *testing.T) {
	server := newObjectServer(t, jsonHandler)

	var out bytes.Buffer
	calls := 0
	e := newTestEnumerator(t, server.URL+"/obj/", stopAfter(5, &calls), &out)

	err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrOperatorInput)

	assert.Equal(t, []string{"/obj/1", "/obj/2", "/obj/3", "/obj/4", "/obj/5"}, server.requested())
	assert.Equal(t, 5, calls)
	for i := 1; i <= 5; i++ {
		assert.Contains(t, out.String(), fmt.Sprintf("Results for %s/obj/%d:", server.URL, i))
	}
}

func TestEnumerator_StopsOnNonJSON(t *testing.T) {
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/obj/2" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><head><title>Please log in</title></head><body>login</body></html>")
			return
		}
		jsonHandler(w, r)
	})

	var out bytes.Buffer
	calls := 0
	e := newTestEnumerator(t, server.URL+"/obj/", stopAfter(100, &calls), &out)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
	assert.Contains(t, err.Error(), "failed to read response body")
	assert.Contains(t, err.Error(), `"Please log in"`)

	assert.Equal(t, []string{"/obj/1", "/obj/2"}, server.requested())
	assert.Equal(t, 1, calls)
	assert.NotContains(t, out.String(), "/obj/2:")
}

func TestEnumerator_EmptyBodyIsFatal(t *testing.T) {
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	var out bytes.Buffer
	calls := 0
	e := newTestEnumerator(t, server.URL+"/obj/", stopAfter(100, &calls), &out)

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidJSON)
	assert.Equal(t, 0, calls)
	assert.Empty(t, out.String())
}

func TestEnumerator_StatusCodeNotInterpreted(t *testing.T) {
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"forbidden"}`)
	})

	var out bytes.Buffer
	e := newTestEnumerator(t, server.URL+"/obj/", GateFunc(func(context.Context) error { return nil }), &out)

	probe, err := e.Probe(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, probe.StatusCode)
	assert.Contains(t, out.String(), `"error": "forbidden"`)
}

func TestEnumerator_RequestFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(jsonHandler))
	endpoint := server.URL + "/obj/"
	server.Close()

	var out bytes.Buffer
	calls := 0
	e := newTestEnumerator(t, endpoint, stopAfter(100, &calls), &out)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to request: "+endpoint+"1")
	assert.Equal(t, 0, calls)
}

func TestEnumerator_SendsSessionCookieAndUserAgent(t *testing.T) {
	var cookie, agent string
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		agent = r.Header.Get("User-Agent")
		jsonHandler(w, r)
	})

	config := httpclient.DefaultConfig()
	config.DefaultHeaders.Set("Cookie", "PHPSESSID=abc123")
	client, err := httpclient.New(config)
	require.NoError(t, err)

	var out bytes.Buffer
	e := NewEnumerator(EnumeratorConfig{Endpoint: server.URL + "/obj/", Selector: "id"}, Dependencies{
		Client: client,
		Gate:   GateFunc(func(context.Context) error { return nil }),
		Output: &out,
	})

	_, err = e.Probe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "PHPSESSID=abc123", cookie)
	assert.Equal(t, httpclient.DefaultUserAgent, agent)
}

func TestEnumerator_CancelledWhileWaiting(t *testing.T) {
	server := newObjectServer(t, jsonHandler)

	ctx, cancel := context.WithCancel(context.Background())
	gate := GateFunc(func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	var out bytes.Buffer
	e := newTestEnumerator(t, server.URL+"/obj/", gate, &out)

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrOperatorInput)
	assert.Equal(t, []string{"/obj/1"}, server.requested())
}

type memoryRecorder struct {
	probes []types.Probe
	err    error
}

func (m *memoryRecorder) SaveProbe(ctx context.Context, probe *types.Probe) error {
	if m.err != nil {
		return m.err
	}
	m.probes = append(m.probes, *probe)
	return nil
}

func TestEnumerator_RecordsProbesAndDuplicates(t *testing.T) {
	server := newObjectServer(t, func(w http.ResponseWriter, r *http.Request) {
		// every index past the first returns the same object
		if r.URL.Path == "/obj/1" {
			fmt.Fprint(w, `{"id": 1}`)
			return
		}
		fmt.Fprint(w, `{ "id" : 2 }`)
	})

	client, err := httpclient.New(httpclient.DefaultConfig())
	require.NoError(t, err)

	recorder := &memoryRecorder{}
	calls := 0
	var out bytes.Buffer
	e := NewEnumerator(EnumeratorConfig{Endpoint: server.URL + "/obj/", Selector: "id", RunID: "run-1"}, Dependencies{
		Client:   client,
		Gate:     stopAfter(3, &calls),
		Output:   &out,
		Recorder: recorder,
	})

	require.ErrorIs(t, e.Run(context.Background()), ErrOperatorInput)
	require.Len(t, recorder.probes, 3)

	assert.Equal(t, "run-1", recorder.probes[0].RunID)
	assert.Equal(t, `{"id":1}`, string(recorder.probes[0].Body))
	assert.False(t, recorder.probes[0].IsDuplicate())
	assert.False(t, recorder.probes[1].IsDuplicate())
	require.True(t, recorder.probes[2].IsDuplicate())
	assert.Equal(t, int64(2), *recorder.probes[2].DuplicateOf)
	assert.Equal(t, 2, e.tracker.Distinct())
}

func TestEnumerator_RecorderFailureIsFatal(t *testing.T) {
	server := newObjectServer(t, jsonHandler)

	client, err := httpclient.New(httpclient.DefaultConfig())
	require.NoError(t, err)

	calls := 0
	var out bytes.Buffer
	e := NewEnumerator(EnumeratorConfig{Endpoint: server.URL + "/obj/"}, Dependencies{
		Client:   client,
		Gate:     stopAfter(100, &calls),
		Output:   &out,
		Recorder: &memoryRecorder{err: errors.New("db down")},
	})

	err = e.Run(context.Background())
	assert.ErrorContains(t, err, "failed to record probe")
	assert.Equal(t, 0, calls)
}
