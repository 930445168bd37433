package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/agentconsole/internal/broadcast"
	"github.com/grovetools/agentconsole/internal/session"
	"github.com/grovetools/agentconsole/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sessionA = "0b7e2c3a-1111-4222-8333-944445555666"
	sessionB = "1c8f3d4b-2222-4333-9444-a55556666777"
)

type testEnv struct {
	home   string
	root   string
	server *Server
	ts     *httptest.Server
}

func newTestEnv(t *testing.T, withWatcher bool) *testEnv {
	t.Helper()
	home := t.TempDir()
	root := filepath.Join(home, "projects")
	require.NoError(t, os.MkdirAll(root, 0o755))

	opts := Options{
		Cache:     session.NewCache(root, session.Options{}),
		Hub:       broadcast.New(),
		Heartbeat: 50 * time.Millisecond,
	}
	if withWatcher {
		opts.Watcher = watcher.New(watcher.Paths{
			SessionRoot:  root,
			SettingsFile: filepath.Join(home, "settings.json"),
			PluginsFile:  filepath.Join(home, "plugins", "installed_plugins.json"),
		}, watcher.Options{SettleWindow: 30 * time.Millisecond})
	}
	srv := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.connectWatcher(ctx))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		if opts.Watcher != nil {
			_ = opts.Watcher.Close()
		}
	})
	return &testEnv{home: home, root: root, server: srv, ts: ts}
}

func (e *testEnv) writeSession(t *testing.T, project, id string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(e.root, project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, id+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func (e *testEnv) do(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeSession(t, "-home-me-proj", sessionA, `{"type":"user","cwd":"/home/me/proj"}`)

	resp := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Projects []session.Project `json:"projects"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	require.Len(t, body.Projects, 1)
	assert.Equal(t, "/home/me/proj", body.Projects[0].Path)
	assert.Equal(t, "-home-me-proj", body.Projects[0].EncodedPath)
	require.Len(t, body.Projects[0].Sessions, 1)
	assert.Equal(t, sessionA, body.Projects[0].Sessions[0].ID)
}

func TestListSessionsEmpty(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"projects":[]}`, readBody(t, resp))
}

func TestETagRevalidation(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeSession(t, "-proj", sessionA, `{"type":"user"}`)

	first := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	tag := first.Header.Get("ETag")
	require.NotEmpty(t, tag)

	second := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, http.Header{"If-None-Match": {tag}})
	assert.Equal(t, http.StatusNotModified, second.StatusCode)
	assert.Empty(t, readBody(t, second))

	third := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, http.Header{"If-None-Match": {`"stale"`}})
	assert.Equal(t, http.StatusOK, third.StatusCode)
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeSession(t, "-proj", sessionA,
		`{"type":"user","timestamp":"2025-05-01T10:00:00.000Z","message":{"role":"user","content":"hi"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello"}]},"costUSD":0.01}`)

	resp := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		ID        string            `json:"id"`
		CreatedAt string            `json:"createdAt"`
		Messages  []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &detail))
	assert.Equal(t, sessionA, detail.ID)
	assert.Equal(t, "2025-05-01T10:00:00.000Z", detail.CreatedAt)
	require.Len(t, detail.Messages, 2)
	assert.Contains(t, string(detail.Messages[1]), `"costUSD":0.01`)
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeSession(t, "-proj", sessionA, `{"type":"user"}`)
	env.writeSession(t, "-broken", sessionB, `{"type":"user"}`, `not json`)

	paths := []string{
		"/api/sessions/-proj/" + sessionB,
		"/api/sessions/-proj/not-a-uuid",
		"/api/sessions/-nope/" + sessionA,
		"/api/sessions/-broken/" + sessionB,
	}
	for _, path := range paths {
		resp := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.JSONEq(t, `{"error":"Session not found"}`, readBody(t, resp), path)
	}
}

func TestExportSession(t *testing.T) {
	env := newTestEnv(t, false)
	env.writeSession(t, "-proj", sessionA,
		`{"type":"user","message":{"role":"user","content":"`+strings.Repeat("lorem ipsum ", 400)+`"}}`)

	md := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA+"/export", nil)
	require.Equal(t, http.StatusOK, md.StatusCode)
	assert.True(t, strings.HasPrefix(md.Header.Get("Content-Type"), "text/markdown"))
	assert.Equal(t, `attachment; filename="`+sessionA+`.md"`, md.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(readBody(t, md), "# Claude Session"))

	js := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA+"/export?format=json", nil)
	require.Equal(t, http.StatusOK, js.StatusCode)
	assert.Equal(t, "application/json", js.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+sessionA+`.json"`, js.Header.Get("Content-Disposition"))

	html := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA+"/export?format=html", nil)
	require.Equal(t, http.StatusOK, html.StatusCode)
	assert.Contains(t, readBody(t, html), "<h1>Claude Session</h1>")

	gz := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA+"/export", http.Header{"Accept-Encoding": {"gzip"}})
	require.Equal(t, http.StatusOK, gz.StatusCode)
	assert.Equal(t, "gzip", gz.Header.Get("Content-Encoding"))

	missing := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionB+"/export", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, false)
	path := env.writeSession(t, "-proj", sessionA, `{"type":"user"}`)
	env.writeSession(t, "-proj", sessionB, `{"type":"user"}`)

	// Warm the caches.
	env.do(t, http.MethodGet, "/api/sessions", nil)
	env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, nil)

	resp := env.do(t, http.MethodDelete, "/api/sessions/-proj/"+sessionA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, readBody(t, resp))
	assert.NoFileExists(t, path)

	again := env.do(t, http.MethodDelete, "/api/sessions/-proj/"+sessionA, nil)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"Session not found"}`, readBody(t, again))

	detail := env.do(t, http.MethodGet, "/api/sessions/-proj/"+sessionA, nil)
	assert.Equal(t, http.StatusNotFound, detail.StatusCode)

	list := env.do(t, http.MethodGet, "/api/sessions", nil)
	body := readBody(t, list)
	assert.NotContains(t, body, sessionA)
	assert.Contains(t, body, sessionB)
}

func TestDeleteRejectsTraversal(t *testing.T) {
	env := newTestEnv(t, false)
	outside := filepath.Join(env.home, sessionA+".jsonl")
	require.NoError(t, os.WriteFile(outside, []byte("{}\n"), 0o644))

	resp := env.do(t, http.MethodDelete, "/api/sessions/..%2F/"+sessionA, nil)
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	assert.FileExists(t, outside)

	resp = env.do(t, http.MethodDelete, "/api/sessions/-proj/..%2F..%2F"+sessionA, nil)
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	assert.FileExists(t, outside)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["clients"])
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodOptions, "/api/sessions", http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	get := env.do(t, http.MethodGet, "/api/sessions", http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, "http://localhost:5173", get.Header.Get("Access-Control-Allow-Origin"))
}

// sseReader reads events from an open stream.
type sseReader struct {
	t      *testing.T
	events chan [2]string
}

func openStream(t *testing.T, env *testEnv) *sseReader {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Empty(t, resp.Header.Get("Content-Encoding"))

	r := &sseReader{t: t, events: make(chan [2]string, 64)}
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				r.events <- [2]string{name, strings.TrimPrefix(line, "data: ")}
			case strings.HasPrefix(line, ": ping"):
				r.events <- [2]string{"ping", ""}
			}
		}
		close(r.events)
	}()
	return r
}

// next returns the next named event, skipping heartbeats.
func (r *sseReader) next() (string, string) {
	r.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.t.Fatal("stream closed")
			}
			if ev[0] == "ping" {
				continue
			}
			return ev[0], ev[1]
		case <-timeout:
			r.t.Fatal("timed out waiting for stream event")
		}
	}
}

func TestSSEConnectedAndHeartbeat(t *testing.T) {
	env := newTestEnv(t, false)
	stream := openStream(t, env)

	name, data := stream.next()
	assert.Equal(t, "connected", name)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	_, err := time.Parse(time.RFC3339Nano, payload["timestamp"])
	assert.NoError(t, err)

	select {
	case ev := <-stream.events:
		assert.Equal(t, "ping", ev[0])
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
	assert.Equal(t, 1, env.server.hub.Len())
}

func TestSSEDeliversWatcherEvents(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, os.MkdirAll(filepath.Join(env.root, "-proj"), 0o755))

	first := openStream(t, env)
	second := openStream(t, env)
	name, _ := first.next()
	require.Equal(t, "connected", name)
	name, _ = second.next()
	require.Equal(t, "connected", name)

	// Drain the addDir for -proj, which may race the stream attach.
	time.Sleep(100 * time.Millisecond)
	drain(first)
	drain(second)

	path := env.writeSession(t, "-proj", sessionA, `{"type":"user"}`)
	for _, stream := range []*sseReader{first, second} {
		name, data := stream.next()
		assert.Equal(t, "session-change", name)
		assert.JSONEq(t, `{"type":"add","path":`+mustJSON(t, path)+`}`, data)
	}

	require.NoError(t, os.WriteFile(filepath.Join(env.home, "settings.json"), []byte("{}"), 0o644))
	name, data := first.next()
	assert.Equal(t, "settings-change", name)
	assert.Contains(t, data, `"type":"add"`)
}

func drain(r *sseReader) {
	for {
		select {
		case <-r.events:
		default:
			return
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	root := t.TempDir()
	srv := New(Options{
		Addr:      "127.0.0.1:0",
		Cache:     session.NewCache(root, session.Options{}),
		Heartbeat: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
