// Package voice wraps the conversational voice platform: signed connection
// credentials, agent validation and agent provisioning. The wire protocol is
// the provider's concern; this package only exposes the orchestration
// contract the session services need.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// AgentSpec describes an agent to provision from a personality
type AgentSpec struct {
	Name         string         `json:"name"`
	Instructions string         `json:"instructions"`
	VoiceParams  map[string]any `json:"voice_params,omitempty"`
	FirstMessage string         `json:"first_message,omitempty"`
}

// SessionOverrides customize one connection: the system prompt carries the
// rendered user context, the first message is the personalized greeting.
type SessionOverrides struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
	FirstMessage string `json:"first_message,omitempty"`
}

// Platform is the consumed interface of the voice provider
type Platform interface {
	// GetSignedURL issues a time-boxed connection credential for an agent.
	GetSignedURL(ctx context.Context, agentID string, overrides *SessionOverrides) (string, error)
	// ValidateAgent reports whether the agent exists on the platform.
	ValidateAgent(ctx context.Context, agentID string) error
	// CreateAgent provisions a new agent and returns its id.
	CreateAgent(ctx context.Context, spec *AgentSpec) (string, error)
}

// Client is the HTTP implementation of Platform
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a platform client. baseURL must not end with a slash.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Platform = (*Client)(nil)

// GetSignedURL issues a signed websocket URL for the agent
func (c *Client) GetSignedURL(ctx context.Context, agentID string, overrides *SessionOverrides) (string, error) {
	url := fmt.Sprintf("%s/v1/convai/conversation/get-signed-url?agent_id=%s", c.baseURL, agentID)

	var body io.Reader
	method := http.MethodGet
	if overrides != nil {
		b, err := json.Marshal(map[string]any{"overrides": overrides})
		if err != nil {
			return "", errors.Wrap(err, "marshal session overrides")
		}
		body = bytes.NewReader(b)
		method = http.MethodPost
	}

	var resp struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.do(ctx, method, url, body, &resp); err != nil {
		return "", errors.Wrap(err, "get signed url")
	}
	if resp.SignedURL == "" {
		return "", errors.New("platform returned empty signed url")
	}
	return resp.SignedURL, nil
}

// ValidateAgent checks that the agent exists
func (c *Client) ValidateAgent(ctx context.Context, agentID string) error {
	url := fmt.Sprintf("%s/v1/convai/agents/%s", c.baseURL, agentID)
	if err := c.do(ctx, http.MethodGet, url, nil, nil); err != nil {
		return errors.Wrapf(err, "validate agent %s", agentID)
	}
	return nil
}

// CreateAgent provisions an agent from the spec
func (c *Client) CreateAgent(ctx context.Context, spec *AgentSpec) (string, error) {
	url := fmt.Sprintf("%s/v1/convai/agents/create", c.baseURL)

	b, err := json.Marshal(spec)
	if err != nil {
		return "", errors.Wrap(err, "marshal agent spec")
	}

	var resp struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.do(ctx, http.MethodPost, url, bytes.NewReader(b), &resp); err != nil {
		return "", errors.Wrap(err, "create agent")
	}
	if resp.AgentID == "" {
		return "", errors.New("platform returned empty agent id")
	}
	return resp.AgentID, nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("xi-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("platform responded %d: %s", resp.StatusCode, string(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
