// Package promptlayer implements the textgen.Generator interface using
// PromptLayer prompt templates and the OpenAI Chat Completions API.
//
// Generation runs in three steps:
//
//  1. The named template is fetched from PromptLayer with the input
//     variables filled in and the llm_kwargs formatted for OpenAI.
//  2. The llm_kwargs (model, messages, extra parameters) are submitted to
//     the Chat Completions API through a client built for this call only.
//  3. The request/response pair is logged back to PromptLayer on a
//     detached goroutine. That call never delays or fails the caller.
package promptlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tidwall/gjson"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
	"github.com/nadzzz/islandgreet/internal/textgen"
)

const (
	provider     = "openai"
	functionName = "openai.chat.completions.create"
	apiType      = "chat-completions"
)

// Generator fetches PromptLayer templates and runs them against OpenAI.
type Generator struct {
	apiKey       string
	baseURL      string
	label        string
	logTimeout   time.Duration
	openaiKey    string
	openaiURL    string
	defaultModel string
	openaiTO     time.Duration
	client       *http.Client

	// logs tracks in-flight log-request calls so Close can drain them.
	logs sync.WaitGroup
}

var _ textgen.Generator = (*Generator)(nil)

// New creates a new Generator from config.
func New(pl config.PromptLayerConfig, oa config.OpenAIConfig) *Generator {
	label := pl.Label
	if label == "" {
		label = "prod"
	}
	model := oa.DefaultModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Generator{
		apiKey:       pl.APIKey,
		baseURL:      strings.TrimRight(pl.BaseURL, "/"),
		label:        label,
		logTimeout:   pl.LogTimeout,
		openaiKey:    oa.APIKey,
		openaiURL:    oa.BaseURL,
		defaultModel: model,
		openaiTO:     oa.Timeout,
		client:       &http.Client{Timeout: pl.Timeout},
	}
}

// Generate resolves the flavor's template for name and returns the trimmed completion text.
func (g *Generator) Generate(ctx context.Context, name string, flavor greeting.Flavor) (string, error) {
	promptName := flavor.TemplateName()
	inputVariables := map[string]string{"name": name}

	tmpl, err := g.fetchTemplate(ctx, promptName, inputVariables)
	if err != nil {
		return "", err
	}

	req, err := g.buildCompletion(tmpl)
	if err != nil {
		return "", err
	}

	start := time.Now()
	completion, err := g.complete(ctx, req)
	if err != nil {
		return "", err
	}
	end := time.Now()

	text := ""
	if len(completion.Choices) > 0 {
		text = strings.TrimSpace(completion.Choices[0].Message.Content)
	}
	if text == "" {
		return "", textgen.ErrEmptyText
	}

	g.logRequest(logEntry{
		promptName:     promptName,
		template:       tmpl,
		inputVariables: inputVariables,
		request:        req,
		output:         completion.Choices[0].Message.Content,
		inputTokens:    completion.Usage.PromptTokens,
		outputTokens:   completion.Usage.CompletionTokens,
		start:          start,
		end:            end,
	})

	slog.Debug("greeting text generated", "prompt", promptName, "model", req.model, "text_length", len(text))
	return text, nil
}

// Close waits for outstanding log-request calls. Each one is bounded by the
// log timeout.
func (g *Generator) Close() error {
	g.logs.Wait()
	return nil
}

// --- Template fetch ---

type templateRequest struct {
	Label          string            `json:"label"`
	Provider       string            `json:"provider"`
	InputVariables map[string]string `json:"input_variables"`
}

// template is the subset of POST /prompt-templates/{name} the generator uses.
type template struct {
	id        int64
	version   int64
	llmKwargs gjson.Result
	metaModel string
}

func (g *Generator) fetchTemplate(ctx context.Context, promptName string, vars map[string]string) (*template, error) {
	bodyBytes, err := json.Marshal(templateRequest{
		Label:          g.label,
		Provider:       provider,
		InputVariables: vars,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling template request: %w", err)
	}

	endpoint := g.baseURL + "/prompt-templates/" + url.PathEscape(promptName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating template request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("template request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("promptlayer template failed (status %d): %s", resp.StatusCode, respBody)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("template response is not valid json")
	}

	doc := gjson.ParseBytes(raw)
	return &template{
		id:        doc.Get("id").Int(),
		version:   doc.Get("version").Int(),
		llmKwargs: doc.Get("llm_kwargs"),
		metaModel: doc.Get("metadata.model.name").String(),
	}, nil
}

// --- Completion ---

// chatMessage is the text view of a template message, used for the
// log-request blueprint only.
type chatMessage struct {
	Role  string
	Parts []string
}

type completionRequest struct {
	model    string
	messages []chatMessage
	raw      any // llm_kwargs.messages exactly as the template returned it
	extra    map[string]any
}

// buildCompletion turns the template's llm_kwargs into a completion request.
// The message list and everything other than model are passed through unchanged.
func (g *Generator) buildCompletion(tmpl *template) (*completionRequest, error) {
	if !tmpl.llmKwargs.Exists() || !tmpl.llmKwargs.IsObject() {
		return nil, fmt.Errorf("promptlayer did not return llm_kwargs for %s", provider)
	}

	model := tmpl.llmKwargs.Get("model").String()
	if model == "" {
		model = tmpl.metaModel
	}
	if model == "" {
		model = g.defaultModel
	}

	raw := tmpl.llmKwargs.Get("messages")
	var messages []chatMessage
	for _, m := range raw.Array() {
		messages = append(messages, chatMessage{
			Role:  m.Get("role").String(),
			Parts: contentParts(m.Get("content")),
		})
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("promptlayer returned no messages in llm_kwargs")
	}

	extra := make(map[string]any)
	tmpl.llmKwargs.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "model", "messages":
		default:
			extra[key.String()] = value.Value()
		}
		return true
	})

	return &completionRequest{model: model, messages: messages, raw: raw.Value(), extra: extra}, nil
}

// contentParts lists the text of an OpenAI message content value, which is
// either a string or an array of content parts. Non-text parts are kept as
// raw JSON.
func contentParts(content gjson.Result) []string {
	if !content.IsArray() {
		return []string{content.String()}
	}
	var parts []string
	for _, part := range content.Array() {
		if text := part.Get("text"); text.Exists() {
			parts = append(parts, text.String())
			continue
		}
		parts = append(parts, part.Raw)
	}
	return parts
}

// complete runs the chat completion. The OpenAI client is constructed for
// this call so keys and settings are never shared between requests.
func (g *Generator) complete(ctx context.Context, req *completionRequest) (*openai.ChatCompletion, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(g.openaiKey),
		option.WithMaxRetries(0),
	}
	if g.openaiURL != "" {
		opts = append(opts, option.WithBaseURL(g.openaiURL))
	}
	if g.openaiTO > 0 {
		opts = append(opts, option.WithRequestTimeout(g.openaiTO))
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.model),
	}

	extra := []option.RequestOption{option.WithJSONSet("messages", req.raw)}
	for key, value := range req.extra {
		extra = append(extra, option.WithJSONSet(key, value))
	}

	completion, err := client.Chat.Completions.New(ctx, params, extra...)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return completion, nil
}
