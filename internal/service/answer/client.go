package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

const (
	dispatchPath  = "/llm/mcp-router/dispatch"
	recommendPath = "/tools/consumption_recommend"

	// RecommendToolName is recorded on proactive replies built from the
	// recommendation capability.
	RecommendToolName = "consumption_recommend"

	defaultTimeout = 30 * time.Second
	maxReplyBytes  = 1 << 20
)

// Config describes where the answer service lives.
type Config struct {
	LLMServerURL string
	MCPServerURL string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the external answer service over HTTP.
type Client struct {
	httpClient   *http.Client
	dispatchURL  string
	recommendURL string
}

// NewClient builds a Client. MCPServerURL defaults to LLMServerURL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	mcp := cfg.MCPServerURL
	if mcp == "" {
		mcp = cfg.LLMServerURL
	}

	return &Client{
		httpClient:   httpClient,
		dispatchURL:  strings.TrimRight(cfg.LLMServerURL, "/") + dispatchPath,
		recommendURL: strings.TrimRight(mcp, "/") + recommendPath,
	}
}

type dispatchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type dispatchReply struct {
	Answer       json.RawMessage `json:"answer"`
	ToolResponse json.RawMessage `json:"tool_response"`
}

type toolReply struct {
	ToolName string `json:"tool_name"`
	Content  struct {
		Answer           json.RawMessage `json:"answer"`
		LoginRequired    *bool           `json:"login_required"`
		RelatedQuestions json.RawMessage `json:"relatedQuestions"`
		CardList         json.RawMessage `json:"card_list"`
	} `json:"tool_response_content"`
}

// Ask sends one user query to the dispatch endpoint. It never returns a Go
// error: failures are classified into Result.Err.
func (c *Client) Ask(ctx context.Context, query, sessionID string) Result {
	body, err := c.post(ctx, c.dispatchURL, dispatchRequest{Query: query, SessionID: sessionID})
	if err != nil {
		log.Printf("[answer] dispatch failed session=%s: %v", sessionID, err)
		return Failed(err)
	}

	result, err := decodeDispatch(body)
	if err != nil {
		log.Printf("[answer] dispatch reply rejected session=%s: %v", sessionID, err)
		return Failed(err)
	}
	return result
}

func decodeDispatch(body []byte) (Result, error) {
	var reply dispatchReply
	if err := decodeLenient(body, &reply); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !isEmptyObject(reply.ToolResponse) {
		var tool toolReply
		if err := json.Unmarshal(reply.ToolResponse, &tool); err != nil {
			return Result{}, fmt.Errorf("%w: tool_response: %v", ErrMalformed, err)
		}
		text, err := answerText(tool.Content.Answer)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Text: text,
			Tool: &Tool{
				Name: tool.ToolName,
				Payload: Payload{
					LoginRequired:    tool.Content.LoginRequired,
					RelatedQuestions: present(tool.Content.RelatedQuestions),
					CardList:         present(tool.Content.CardList),
				},
			},
		}, nil
	}

	text, err := answerText(reply.Answer)
	if err != nil {
		return Result{}, err
	}
	return Plain(text), nil
}

type recommendRequest struct {
	SessionID string `json:"session_id"`
	PersonaID uint   `json:"persona_id"`
}

type recommendReply struct {
	Answer   json.RawMessage `json:"answer"`
	CardList json.RawMessage `json:"card_list"`
	ToolName string          `json:"tool_name"`
}

// Recommend calls the recommendation capability for a freshly bound persona.
// Every failure is returned wrapped in ErrRecommendation.
func (c *Client) Recommend(ctx context.Context, sessionID string, personaID uint) (Result, error) {
	body, err := c.post(ctx, c.recommendURL, recommendRequest{SessionID: sessionID, PersonaID: personaID})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRecommendation, err)
	}

	var reply recommendReply
	if err := decodeLenient(body, &reply); err != nil {
		return Result{}, fmt.Errorf("%w: %w: %v", ErrRecommendation, ErrMalformed, err)
	}
	text, err := answerText(reply.Answer)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRecommendation, err)
	}

	name := reply.ToolName
	if name == "" {
		name = RecommendToolName
	}
	return Result{
		Text: text,
		Tool: &Tool{
			Name:    name,
			Payload: Payload{CardList: present(reply.CardList)},
		},
	}, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if len(body) > maxReplyBytes {
		return nil, fmt.Errorf("%w: reply too large", ErrMalformed)
	}
	return body, nil
}

// decodeLenient unmarshals body, retrying once through jsonrepair for the
// near-JSON some model routers emit (trailing commas, single quotes).
func decodeLenient(body []byte, v any) error {
	err := json.Unmarshal(body, v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(body))
	if repairErr != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return err
	}
	return nil
}

func answerText(raw json.RawMessage) (string, error) {
	if len(present(raw)) == 0 {
		return "", fmt.Errorf("%w: answer missing", ErrMalformed)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("%w: answer is not a string", ErrMalformed)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: answer is empty", ErrMalformed)
	}
	return text, nil
}

// present drops absent and null raw values.
func present(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

// isEmptyObject treats a missing, null, empty or non-object tool_response
// as absent.
func isEmptyObject(raw json.RawMessage) bool {
	raw = present(raw)
	if len(raw) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return true
	}
	return len(fields) == 0
}
