package greeting

import (
	"fmt"
	"net/http"
)

// Code identifies one entry of the closed greeting error taxonomy.
type Code string

const (
	CodeMissingName           Code = "MISSING_NAME"
	CodeMissingElevenLabsKey  Code = "MISSING_ELEVENLABS_KEY"
	CodeMissingVoiceID        Code = "MISSING_VOICE_ID"
	CodeMissingPromptLayerKey Code = "MISSING_PROMPTLAYER_KEY"
	CodeMissingOpenAIKey      Code = "MISSING_OPENAI_KEY"
	CodeTextGen               Code = "TEXT_GEN_ERROR"
	CodeSpeech                Code = "SPEECH_ERROR"
	CodeInternal              Code = "INTERNAL"
)

// Codes lists every code in the taxonomy.
var Codes = []Code{
	CodeMissingName,
	CodeMissingElevenLabsKey,
	CodeMissingVoiceID,
	CodeMissingPromptLayerKey,
	CodeMissingOpenAIKey,
	CodeTextGen,
	CodeSpeech,
	CodeInternal,
}

var messages = map[Code]string{
	CodeMissingName:           "Name is required",
	CodeMissingElevenLabsKey:  "ElevenLabs API key is not configured",
	CodeMissingVoiceID:        "ElevenLabs Voice ID is not configured",
	CodeMissingPromptLayerKey: "PromptLayer API key is not configured",
	CodeMissingOpenAIKey:      "OpenAI API key is not configured",
	CodeTextGen:               "Failed to generate greeting text",
	CodeSpeech:                "Failed to generate speech",
	CodeInternal:              "Internal server error",
}

var defaultStatus = map[Code]int{
	CodeMissingName:           http.StatusBadRequest,
	CodeMissingElevenLabsKey:  http.StatusInternalServerError,
	CodeMissingVoiceID:        http.StatusInternalServerError,
	CodeMissingPromptLayerKey: http.StatusInternalServerError,
	CodeMissingOpenAIKey:      http.StatusInternalServerError,
	CodeTextGen:               http.StatusInternalServerError,
	CodeSpeech:                http.StatusBadGateway,
	CodeInternal:              http.StatusInternalServerError,
}

// Message returns the user-facing message for a code.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CodeInternal]
}

// Error is the single failure value that leaves the orchestrator.
//
// It is returned as a concrete *Error rather than the error interface so the
// boundary mapping always has a code and a status to work with.
type Error struct {
	// Code is the taxonomy entry.
	Code Code

	// Status is the HTTP status reported to the client. For SPEECH_ERROR it
	// is the upstream status.
	Status int

	// Details is optional diagnostic text. Populated only in development.
	Details string

	cause error
}

// New returns an *Error for code with its default status.
func New(code Code) *Error {
	status, ok := defaultStatus[code]
	if !ok {
		code, status = CodeInternal, http.StatusInternalServerError
	}
	return &Error{Code: code, Status: status}
}

// Wrap returns an *Error for code that keeps cause for logging.
func Wrap(code Code, cause error) *Error {
	e := New(code)
	e.cause = cause
	return e
}

// WithStatus overrides the reported status. Values outside the 4xx/5xx
// range are replaced by the code's default.
func (e *Error) WithStatus(status int) *Error {
	if status >= 400 && status <= 599 {
		e.Status = status
	}
	return e
}

// WithDetails attaches diagnostic text.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// Error implements the error interface for logging.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %v", e.Code, e.Status, e.cause)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Message returns the user-facing message.
func (e *Error) Message() string { return e.Code.Message() }

// Body is the JSON shape of a failed greeting response.
type Body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Body returns the response body for e.
func (e *Error) Body() Body {
	return Body{Error: e.Message(), Details: e.Details}
}
