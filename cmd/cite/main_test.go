package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fwojciec/cite"
	citejson "github.com/fwojciec/cite/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseBody renders events as SSE records.
func sseBody(t *testing.T, events ...cite.Event) string {
	t.Helper()
	var b strings.Builder
	for _, evt := range events {
		data, err := citejson.EncodeEvent(evt)
		require.NoError(t, err)
		fmt.Fprintf(&b, "data: %s\n\n", data)
	}
	return b.String()
}

// jobServer answers every submission with job-1 and streams events for it.
func jobServer(t *testing.T, events ...cite.Event) *httptest.Server {
	t.Helper()
	body := sseBody(t, events...)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobId":"job-1","conversationId":"conv-1"}`)
	})
	mux.HandleFunc("GET /api/stream/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o700))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "cite.toml", "[log]\nlevel = \"error\"\n"+extra)
}

func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = newApp(&out, &errOut).RunContext(context.Background(), append([]string{"cite"}, args...))
	return out.String(), errOut.String(), err
}

func refundEvents() []cite.Event {
	return []cite.Event{
		cite.EventToolCall{ToolCall: cite.ToolCall{ID: "tc-1", Name: "search_documents", Status: cite.ToolCompleted}},
		cite.EventTextDelta{Delta: "Refunds take "},
		cite.EventTextDelta{Delta: "thirty days [1]."},
		cite.EventCitation{Citation: cite.Citation{ID: 1, DocumentID: "refunds.md", DocumentTitle: "Refund Policy", PageNumber: 3}},
		cite.EventSource{Source: cite.SourceCard{DocumentID: "refunds.md", Title: "Refund Policy", PageNumber: 3}},
		cite.EventDone{},
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	t.Run("streams answer with footnotes", func(t *testing.T) {
		t.Parallel()
		srv := jobServer(t, refundEvents()...)
		cfg := writeConfig(t, fmt.Sprintf("[server]\nurl = %q\n", srv.URL))

		out, _, err := runApp(t, "--config", cfg, "ask", "how", "long", "are", "refunds?")
		require.NoError(t, err)
		assert.Contains(t, out, "Refunds take thirty days [1].")
		assert.Contains(t, out, "[1] Refund Policy, p. 3")
	})

	t.Run("links resolve cited pages", func(t *testing.T) {
		t.Parallel()
		srv := jobServer(t, refundEvents()...)
		cfg := writeConfig(t, fmt.Sprintf("[server]\nurl = %q\n", srv.URL))

		out, _, err := runApp(t, "--config", cfg, "ask", "--links", "refunds?")
		require.NoError(t, err)
		assert.Contains(t, out, "[1] "+srv.URL+"/api/pdf/refunds.md#page=3")
	})

	t.Run("json prints the final answer", func(t *testing.T) {
		t.Parallel()
		srv := jobServer(t, refundEvents()...)
		cfg := writeConfig(t, fmt.Sprintf("[server]\nurl = %q\n", srv.URL))

		out, _, err := runApp(t, "--config", cfg, "ask", "--json", "refunds?")
		require.NoError(t, err)
		assert.Contains(t, out, `"content": "Refunds take thirty days [1]."`)
		assert.Contains(t, out, `"role": "assistant"`)
	})

	t.Run("backend error fails the command", func(t *testing.T) {
		t.Parallel()
		srv := jobServer(t,
			cite.EventTextDelta{Delta: "Partial"},
			cite.EventError{Code: "generation_failed", Message: "model overloaded"},
		)
		cfg := writeConfig(t, fmt.Sprintf("[server]\nurl = %q\n", srv.URL))

		out, _, err := runApp(t, "--config", cfg, "ask", "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "generation_failed")
		assert.Contains(t, out, "Partial")
	})

	t.Run("missing question", func(t *testing.T) {
		t.Parallel()
		_, _, err := runApp(t, "ask")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing question")
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := writeConfig(t, "[server]\nurl = \"localhost\"\n")
		_, _, err := runApp(t, "--config", cfg, "ask", "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.url")
	})
}

func TestReplay(t *testing.T) {
	t.Parallel()

	t.Run("prints assembled answer", func(t *testing.T) {
		t.Parallel()
		capture := writeFile(t, t.TempDir(), "capture.sse", sseBody(t, refundEvents()...))
		cfg := writeConfig(t, "")

		out, _, err := runApp(t, "--config", cfg, "replay", capture)
		require.NoError(t, err)
		assert.Contains(t, out, `"content": "Refunds take thirty days [1]."`)
		assert.Contains(t, out, `"documentId": "refunds.md"`)
	})

	t.Run("stream without terminal event keeps the error", func(t *testing.T) {
		t.Parallel()
		capture := writeFile(t, t.TempDir(), "capture.sse", sseBody(t, cite.EventTextDelta{Delta: "cut off"}))
		cfg := writeConfig(t, "")

		out, _, err := runApp(t, "--config", cfg, "replay", capture)
		require.NoError(t, err)
		assert.Contains(t, out, `"content": "cut off"`)
		assert.Contains(t, out, `"code": "transport"`)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		cfg := writeConfig(t, "")
		_, _, err := runApp(t, "--config", cfg, "replay", filepath.Join(t.TempDir(), "nope.sse"))
		require.Error(t, err)
	})
}

func TestDocs(t *testing.T) {
	t.Parallel()

	t.Run("lists documents", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "refund_policy.md", "Refunds take thirty days.\fPage two.")
		writeFile(t, dir, "guides/setup.txt", "Install the tool.")
		cfg := writeConfig(t, fmt.Sprintf("[library]\ndir = %q\n", dir))

		out, _, err := runApp(t, "--config", cfg, "docs")
		require.NoError(t, err)
		assert.Contains(t, out, "refund_policy.md")
		assert.Contains(t, out, "refund policy")
		assert.Contains(t, out, "guides/setup.txt")
	})

	t.Run("empty library", func(t *testing.T) {
		t.Parallel()
		cfg := writeConfig(t, fmt.Sprintf("[library]\ndir = %q\n", t.TempDir()))

		out, _, err := runApp(t, "--config", cfg, "docs")
		require.NoError(t, err)
		assert.Contains(t, out, "No documents in")
	})
}

func TestPrinter(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	p := &printer{w: &b}
	p.update(cite.Message{Content: "Hel"})
	p.update(cite.Message{Content: "Hello"})
	p.update(cite.Message{Content: "Hello"})
	assert.Equal(t, "Hello", b.String())

	p.update(cite.Message{Content: "Bye"})
	assert.Equal(t, "Hello\nBye", b.String())
}

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("missing file starts fresh", func(t *testing.T) {
		t.Parallel()
		conv := cite.NewConversation(nil, citejson.DecodeEvent)
		require.NoError(t, restore(conv, filepath.Join(t.TempDir(), "none.json")))
		assert.Empty(t, conv.History())
	})

	t.Run("loads saved history", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "t.json")
		saved := cite.NewConversation(nil, citejson.DecodeEvent, cite.WithConversationID("conv-1"))
		saved.AppendUserMessage("hello")
		require.NoError(t, citejson.SaveTranscript(path, saved.Transcript()))

		conv := cite.NewConversation(nil, citejson.DecodeEvent)
		require.NoError(t, restore(conv, path))
		assert.Equal(t, "conv-1", conv.ID())
		require.Len(t, conv.History(), 1)
		assert.Equal(t, "hello", conv.History()[0].Content)
	})
}
