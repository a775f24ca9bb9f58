package promptlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultLogTimeout = 10 * time.Second

// logEntry is everything needed to record one completion in PromptLayer.
type logEntry struct {
	promptName     string
	template       *template
	inputVariables map[string]string
	request        *completionRequest
	output         string
	inputTokens    int64
	outputTokens   int64
	start, end     time.Time
}

type blueprintPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type blueprintMessage struct {
	Role    string          `json:"role"`
	Content []blueprintPart `json:"content"`
}

// blueprint is PromptLayer's prompt blueprint format for chat prompts.
type blueprint struct {
	Type     string             `json:"type"`
	Messages []blueprintMessage `json:"messages"`
}

type logRequestBody struct {
	Provider             string            `json:"provider"`
	Model                string            `json:"model"`
	Input                blueprint         `json:"input"`
	Output               blueprint         `json:"output"`
	RequestStartTime     float64           `json:"request_start_time"`
	RequestEndTime       float64           `json:"request_end_time"`
	PromptName           string            `json:"prompt_name"`
	PromptID             int64             `json:"prompt_id"`
	PromptVersionNumber  int64             `json:"prompt_version_number"`
	PromptInputVariables map[string]string `json:"prompt_input_variables"`
	FunctionName         string            `json:"function_name"`
	APIType              string            `json:"api_type"`
	InputTokens          int64             `json:"input_tokens"`
	OutputTokens         int64             `json:"output_tokens"`
}

// logRequest records the completion in PromptLayer on its own goroutine.
// It is detached from the caller's context and never reports failure.
func (g *Generator) logRequest(entry logEntry) {
	timeout := g.logTimeout
	if timeout <= 0 {
		timeout = defaultLogTimeout
	}

	g.logs.Add(1)
	go func() {
		defer g.logs.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("promptlayer log-request panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := g.sendLog(ctx, entry); err != nil {
			slog.Warn("failed to log request to promptlayer", "prompt", entry.promptName, "error", err)
		}
	}()
}

func (g *Generator) sendLog(ctx context.Context, entry logEntry) error {
	body := logRequestBody{
		Provider:             provider,
		Model:                entry.request.model,
		Input:                inputBlueprint(entry.request.messages),
		Output:               outputBlueprint(entry.output),
		RequestStartTime:     unixSeconds(entry.start),
		RequestEndTime:       unixSeconds(entry.end),
		PromptName:           entry.promptName,
		PromptID:             entry.template.id,
		PromptVersionNumber:  entry.template.version,
		PromptInputVariables: entry.inputVariables,
		FunctionName:         functionName,
		APIType:              apiType,
		InputTokens:          entry.inputTokens,
		OutputTokens:         entry.outputTokens,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling log request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/log-request", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating log request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("log-request failed (status %d): %s", resp.StatusCode, respBody)
	}
	return nil
}

func inputBlueprint(messages []chatMessage) blueprint {
	bp := blueprint{Type: "chat", Messages: make([]blueprintMessage, 0, len(messages))}
	for _, m := range messages {
		msg := blueprintMessage{Role: m.Role, Content: make([]blueprintPart, 0, len(m.Parts))}
		for _, text := range m.Parts {
			msg.Content = append(msg.Content, blueprintPart{Type: "text", Text: text})
		}
		bp.Messages = append(bp.Messages, msg)
	}
	return bp
}

func outputBlueprint(text string) blueprint {
	return blueprint{
		Type: "chat",
		Messages: []blueprintMessage{{
			Role:    "assistant",
			Content: []blueprintPart{{Type: "text", Text: text}},
		}},
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
