package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChristianGroove/agency-manager-sub002/common/retry"
)

const (
	defaultRemoteBase  = "https://api.openai.com/v1"
	defaultRemoteModel = "gpt-4o-mini"
	defaultHTTPTimeout = 30 * time.Second
)

// RemoteConfig configures the OpenAI-compatible remote adapter.
type RemoteConfig struct {
	// AdapterID is the id this adapter registers under (e.g. "gpt").
	AdapterID string

	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini when empty.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s. The registry
	// races the call against a shorter deadline regardless; this is only the
	// transport-level ceiling.
	Timeout time.Duration
}

// RemoteAdapter implements Adapter over the OpenAI chat completions API,
// with JSON-mode output to guarantee a parseable Response.
type RemoteAdapter struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteAdapter returns an Adapter backed by the OpenAI (or compatible)
// chat API. Safe for concurrent use.
func NewRemoteAdapter(cfg RemoteConfig) *RemoteAdapter {
	if cfg.AdapterID == "" {
		cfg.AdapterID = "gpt"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRemoteBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultRemoteModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &RemoteAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ID implements Adapter.
func (a *RemoteAdapter) ID() string { return a.cfg.AdapterID }

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// systemPromptTmpl is the instruction set sent as the "system" message.
// Substituted at call time: allowed intent ids, the prior intent from short
// term context (or "(ninguno)"), and knowledge references.
const systemPromptTmpl = `Eres la asistente virtual de una agencia. Tu único trabajo es traducir el
mensaje del usuario a una respuesta JSON estructurada.

NUNCA ejecutas acciones tú misma; solo las propones. Toda acción pasa después
por validación, confirmación y auditoría.

Intenciones disponibles para este usuario: %s
Última intención del usuario: %s
Referencias de conocimiento: %s

REGLAS (estrictas):
1. Responde SOLO con JSON válido. Sin markdown, sin explicaciones fuera del JSON.
2. Solo sugiere intenciones de la lista anterior; nunca inventes identificadores.
3. No incluyas claves, tokens ni secretos en tu respuesta.
4. Si no estás segura, omite suggested_action y formula una pregunta aclaratoria en "text".

Esquema JSON de tu respuesta:
{
  "text":        "<respuesta conversacional o pregunta aclaratoria>",
  "confidence":  0.0-1.0,
  "suggested_action": {"type": "<id de intención>", "payload": {"<param>": "<valor>"}}
}
`

// GenerateResponse implements Adapter by calling the chat completions API.
// Transient failures are retried once; rate limiting and malformed output
// map to the package sentinels so callers can distinguish them.
func (a *RemoteAdapter) GenerateResponse(ctx context.Context, input Input) (*Response, error) {
	allowed := strings.Join(input.AllowedActions, ", ")
	if allowed == "" {
		allowed = "(ninguna)"
	}
	lastIntent := input.UserIntent
	if lastIntent == "" {
		lastIntent = "(ninguna)"
	}
	refs := strings.Join(input.KnowledgeRefs, ", ")
	if refs == "" {
		refs = "(ninguna)"
	}

	body := oaiRequest{
		Model: a.cfg.Model,
		Messages: []oaiMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptTmpl, allowed, lastIntent, refs)},
			{Role: "user", Content: input.Message},
		},
		MaxTokens:      512,
		ResponseFormat: &oaiFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("model: marshal request: %w", err)
	}

	var response *Response
	err = retry.Do(ctx, retry.Config{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond, ShouldRetry: isTransient}, func() error {
		response, err = a.call(ctx, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (a *RemoteAdapter) call(ctx context.Context, payload []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("model: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimit
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("model: read response body: %w", err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if oaiResp.Error != nil {
		return nil, fmt.Errorf("model: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("model: no choices returned (HTTP %d)", resp.StatusCode)
	}

	content := oaiResp.Choices[0].Message.Content
	var parsed Response
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v (raw content: %.200s)", ErrMalformedOutput, err, content)
	}
	return &parsed, nil
}

// isTransient classifies errors worth a second attempt. Rate limits and
// malformed bodies will not improve on immediate retry.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case strings.Contains(err.Error(), "http request"):
		return true
	default:
		return false
	}
}
