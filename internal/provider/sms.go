package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unclebandit/retention-engine/internal/model"
)

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	Endpoint   string // API base, the account path is appended
	RateLimit  float64
	Timeout    time.Duration
	Client     *http.Client
}

// SMSProvider sends through a Twilio-style form API with basic auth.
type SMSProvider struct {
	accountSID string
	authToken  string
	from       string
	url        string
	sender     httpSender
}

func NewSMSProvider(cfg SMSConfig) (*SMSProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("sms: %w", ErrMissingCredentials)
	}
	return &SMSProvider{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		url:        strings.TrimRight(cfg.Endpoint, "/") + "/Accounts/" + url.PathEscape(cfg.AccountSID) + "/Messages.json",
		sender:     newHTTPSender("sms", cfg.Client, cfg.Timeout, cfg.RateLimit),
	}, nil
}

func (p *SMSProvider) Channel() model.Channel { return model.ChannelSMS }

type smsResponse struct {
	SID string `json:"sid"`
}

func (p *SMSProvider) Send(ctx context.Context, msg Message) (string, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", p.from)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	var resp smsResponse
	if err := p.sender.do(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.SID == "" {
		return "", fmt.Errorf("sms: empty message sid in response")
	}
	return resp.SID, nil
}

var _ Provider = (*SMSProvider)(nil)
