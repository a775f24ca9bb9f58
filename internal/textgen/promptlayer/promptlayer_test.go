package promptlayer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/textgen"
)

const defaultTemplate = `{
  "id": 7,
  "prompt_name": "Island Prompt",
  "version": 3,
  "llm_kwargs": {
    "model": "gpt-4o",
    "temperature": 0.9,
    "max_tokens": 120,
    "messages": [
      {"role": "system", "content": "You are a Jamaican oracle."},
      {"role": "user", "content": [{"type": "text", "text": "Greet Tom"}]}
    ]
  }
}`

// upstream fakes PromptLayer and the OpenAI API on one test server.
type upstream struct {
	t *testing.T

	templateStatus int
	templateBody   string
	completionText string
	logStatus      int
	logGate        chan struct{} // when set, log-request blocks until closed

	templateCalls   atomic.Int32
	completionCalls atomic.Int32
	templatePath    atomic.Value
	templateReq     atomic.Value
	completionReq   atomic.Value
	logs            chan string
}

func newUpstream(t *testing.T) *upstream {
	return &upstream{
		t:              t,
		templateStatus: http.StatusOK,
		templateBody:   defaultTemplate,
		completionText: "  Wah gwaan Tom!  ",
		logStatus:      http.StatusOK,
		logs:           make(chan string, 4),
	}
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt-templates/{name}", func(w http.ResponseWriter, r *http.Request) {
		u.templateCalls.Add(1)
		u.templatePath.Store(r.PathValue("name"))
		assert.Equal(u.t, "pl-key", r.Header.Get("X-API-KEY"))
		body, _ := io.ReadAll(r.Body)
		u.templateReq.Store(string(body))
		w.WriteHeader(u.templateStatus)
		_, _ = io.WriteString(w, u.templateBody)
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		u.completionCalls.Add(1)
		assert.Equal(u.t, "Bearer sk-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		u.completionReq.Store(string(body))
		content, _ := json.Marshal(u.completionText)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %s}}],
  "usage": {"prompt_tokens": 11, "completion_tokens": 22, "total_tokens": 33}
}`, content)
	})
	mux.HandleFunc("POST /log-request", func(w http.ResponseWriter, r *http.Request) {
		if u.logGate != nil {
			<-u.logGate
		}
		body, _ := io.ReadAll(r.Body)
		u.logs <- string(body)
		w.WriteHeader(u.logStatus)
	})
	return mux
}

func newTestGenerator(t *testing.T, u *upstream) *Generator {
	t.Helper()
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)

	g := New(
		config.PromptLayerConfig{APIKey: "pl-key", BaseURL: srv.URL, Timeout: 5 * time.Second, LogTimeout: 5 * time.Second},
		config.OpenAIConfig{APIKey: "sk-key", BaseURL: srv.URL + "/v1/", Timeout: 5 * time.Second},
	)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	g := newTestGenerator(t, u)

	text, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.NoError(t, err)
	assert.Equal(t, "Wah gwaan Tom!", text)

	assert.Equal(t, "Island Prompt", u.templatePath.Load())
	tmplReq := gjson.Parse(u.templateReq.Load().(string))
	assert.Equal(t, "prod", tmplReq.Get("label").String())
	assert.Equal(t, "openai", tmplReq.Get("provider").String())
	assert.Equal(t, "Tom", tmplReq.Get("input_variables.name").String())

	compReq := gjson.Parse(u.completionReq.Load().(string))
	assert.Equal(t, "gpt-4o", compReq.Get("model").String())
	assert.InEpsilon(t, 0.9, compReq.Get("temperature").Float(), 0.0001)
	assert.Equal(t, int64(120), compReq.Get("max_tokens").Int())
	assert.Equal(t, "system", compReq.Get("messages.0.role").String())
	assert.Equal(t, "user", compReq.Get("messages.1.role").String())

	select {
	case logged := <-u.logs:
		doc := gjson.Parse(logged)
		assert.Equal(t, "Island Prompt", doc.Get("prompt_name").String())
		assert.Equal(t, int64(7), doc.Get("prompt_id").Int())
		assert.Equal(t, int64(3), doc.Get("prompt_version_number").Int())
		assert.Equal(t, int64(11), doc.Get("input_tokens").Int())
		assert.Equal(t, int64(22), doc.Get("output_tokens").Int())
		assert.Equal(t, "Greet Tom", doc.Get("input.messages.1.content.0.text").String())
		assert.Equal(t, "assistant", doc.Get("output.messages.0.role").String())
		assert.Equal(t, "chat-completions", doc.Get("api_type").String())
	case <-time.After(5 * time.Second):
		t.Fatal("log-request was never sent")
	}
}

func TestGenerateAlternateFlavor(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Amara", greeting.Alternate)
	require.NoError(t, err)
	assert.Equal(t, "Island Prompt P", u.templatePath.Load())
}

func TestGenerateTemplateFailure(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.templateStatus = http.StatusUnauthorized
	u.templateBody = `{"message":"bad key"}`
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Zero(t, u.completionCalls.Load())
}

func TestGenerateMissingKwargs(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no llm_kwargs":  `{"id": 1, "version": 1}`,
		"no messages":    `{"id": 1, "version": 1, "llm_kwargs": {"model": "gpt-4o"}}`,
		"empty messages": `{"id": 1, "version": 1, "llm_kwargs": {"model": "gpt-4o", "messages": []}}`,
		"not json":       `<html>oops</html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			u := newUpstream(t)
			u.templateBody = body
			g := newTestGenerator(t, u)

			_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
			require.Error(t, err)
			assert.Zero(t, u.completionCalls.Load())
		})
	}
}

func TestGenerateModelFallback(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.templateBody = `{"id": 1, "version": 1,
	  "metadata": {"model": {"name": "gpt-4.1-mini"}},
	  "llm_kwargs": {"messages": [{"role": "user", "content": "hi"}]}}`
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", gjson.Get(u.completionReq.Load().(string), "model").String())
}

func TestGenerateDefaultModel(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.templateBody = `{"id": 1, "version": 1, "llm_kwargs": {"messages": [{"role": "user", "content": "hi"}]}}`
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gjson.Get(u.completionReq.Load().(string), "model").String())
}

func TestGenerateEmptyCompletion(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.completionText = " \n\t "
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.ErrorIs(t, err, textgen.ErrEmptyText)

	require.NoError(t, g.Close())
	assert.Empty(t, u.logs, "nothing is logged for an empty completion")
}

func TestGenerateIgnoresLogFailure(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.logStatus = http.StatusInternalServerError
	g := newTestGenerator(t, u)

	text, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.NoError(t, err)
	assert.Equal(t, "Wah gwaan Tom!", text)
}

func TestGenerateDoesNotWaitForLog(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.logGate = make(chan struct{})
	g := newTestGenerator(t, u)

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Generate blocked on the log-request call")
	}

	close(u.logGate)
	select {
	case <-u.logs:
	case <-time.After(5 * time.Second):
		t.Fatal("log-request never completed")
	}
}

func TestGenerateLogSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	u.logGate = make(chan struct{})
	g := newTestGenerator(t, u)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := g.Generate(ctx, "Tom", greeting.Standard)
	require.NoError(t, err)
	cancel()
	close(u.logGate)

	select {
	case <-u.logs:
	case <-time.After(5 * time.Second):
		t.Fatal("log-request was cancelled with the caller")
	}
}

func TestGenerateSendsTemplateMessagesVerbatim(t *testing.T) {
	t.Parallel()

	const messages = `[
      {"role": "system", "content": "You are a Jamaican oracle.", "name": "oracle"},
      {"role": "user", "content": [{"type": "text", "text": "Part one."}, {"type": "text", "text": "Part two."}]},
      {"role": "assistant", "content": null, "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{}"}}]},
      {"role": "tool", "tool_call_id": "call_1", "content": "Tom is from Kingston."}
    ]`

	u := newUpstream(t)
	u.templateBody = `{"id": 9, "version": 1, "llm_kwargs": {"model": "gpt-4o", "messages": ` + messages + `}}`
	g := newTestGenerator(t, u)

	_, err := g.Generate(context.Background(), "Tom", greeting.Standard)
	require.NoError(t, err)

	compReq := gjson.Parse(u.completionReq.Load().(string))
	assert.JSONEq(t, messages, compReq.Get("messages").Raw)

	select {
	case logged := <-u.logs:
		doc := gjson.Parse(logged)
		assert.Equal(t, "Part one.", doc.Get("input.messages.1.content.0.text").String())
		assert.Equal(t, "Part two.", doc.Get("input.messages.1.content.1.text").String())
	case <-time.After(5 * time.Second):
		t.Fatal("log-request was never sent")
	}
}

func TestContentParts(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"plain"}, contentParts(gjson.Parse(`"plain"`)))
	assert.Equal(t, []string{"a", "b"}, contentParts(gjson.Parse(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)))
}
