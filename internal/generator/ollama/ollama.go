// Package ollama provides a Generator backed by the Ollama /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config configures the Ollama chat generator.
type Config struct {
	URL         string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Client struct {
	url         string
	model       string
	temperature float64
	client      *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "gemma:2b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		url:         strings.TrimRight(cfg.URL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
	}
}

func (c *Client) Name() string { return "ollama:" + c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// Complete sends prompt as a single user message with streaming disabled.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": []chatMessage{{Role: "user", Content: prompt}},
		"stream":   false,
		"options":  map[string]any{"temperature": c.temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: /api/chat returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ollama: decode chat response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New("ollama: " + parsed.Error)
	}
	return parsed.Message.Content, nil
}
