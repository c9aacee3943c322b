package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unclebandit/retention-engine/internal/model"
)

type ChatConfig struct {
	AccessToken   string
	PhoneNumberID string
	Endpoint      string
	RateLimit     float64
	Timeout       time.Duration
	Client        *http.Client
}

// ChatProvider sends text messages through a WhatsApp Cloud-style API.
type ChatProvider struct {
	accessToken string
	url         string
	sender      httpSender
}

func NewChatProvider(cfg ChatConfig) (*ChatProvider, error) {
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("chat: %w", ErrMissingCredentials)
	}
	return &ChatProvider{
		accessToken: cfg.AccessToken,
		url:         strings.TrimRight(cfg.Endpoint, "/") + "/" + url.PathEscape(cfg.PhoneNumberID) + "/messages",
		sender:      newHTTPSender("chat", cfg.Client, cfg.Timeout, cfg.RateLimit),
	}, nil
}

func (p *ChatProvider) Channel() model.Channel { return model.ChannelChat }

type chatText struct {
	Body string `json:"body"`
}

type chatRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             chatText `json:"text"`
}

type chatResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (p *ChatProvider) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		MessagingProduct: "whatsapp",
		To:               msg.To,
		Type:             "text",
		Text:             chatText{Body: msg.Body},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	var resp chatResponse
	if err := p.sender.do(ctx, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", fmt.Errorf("chat: empty message id in response")
	}
	return resp.Messages[0].ID, nil
}

var _ Provider = (*ChatProvider)(nil)
