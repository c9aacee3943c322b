package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/unclebandit/retention-engine/internal/model"
)

type EmailConfig struct {
	APIKey    string
	From      string
	Endpoint  string
	RateLimit float64 // sends per second, 0 means unlimited
	Timeout   time.Duration
	Client    *http.Client
}

// EmailProvider sends through a Resend-style JSON API.
type EmailProvider struct {
	apiKey   string
	from     string
	endpoint string
	sender   httpSender
}

func NewEmailProvider(cfg EmailConfig) (*EmailProvider, error) {
	if cfg.APIKey == "" || cfg.From == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("email: %w", ErrMissingCredentials)
	}
	return &EmailProvider{
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		endpoint: cfg.Endpoint,
		sender:   newHTTPSender("email", cfg.Client, cfg.Timeout, cfg.RateLimit),
	}, nil
}

func (p *EmailProvider) Channel() model.Channel { return model.ChannelEmail }

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type emailResponse struct {
	ID string `json:"id"`
}

func (p *EmailProvider) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(emailRequest{
		From:    p.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var resp emailResponse
	if err := p.sender.do(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("email: empty message id in response")
	}
	return resp.ID, nil
}

var _ Provider = (*EmailProvider)(nil)
