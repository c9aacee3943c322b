package provider

import (
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/config"
	"github.com/unclebandit/retention-engine/internal/model"
)

// FromConfig builds the registry for the configured channels. A channel with
// no settings at all is skipped, or backed by a LogProvider when
// useLogFallback is set. A partially configured channel is an error.
func FromConfig(cfg config.ProviderConfig, useLogFallback bool, log *zap.Logger) (*Registry, error) {
	reg := NewRegistry()

	fallback := func(ch model.Channel) {
		if useLogFallback {
			log.Warn("no credentials for channel, using log provider", zap.String("channel", string(ch)))
			reg.Register(NewLogProvider(ch, log))
			return
		}
		log.Warn("no credentials for channel, sends will fail", zap.String("channel", string(ch)))
	}

	if e := cfg.Email; e.APIKey == "" && e.From == "" {
		fallback(model.ChannelEmail)
	} else {
		p, err := NewEmailProvider(EmailConfig{
			APIKey: e.APIKey, From: e.From, Endpoint: e.Endpoint, RateLimit: e.RateLimit, Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(p)
	}

	if s := cfg.SMS; s.AccountSID == "" && s.AuthToken == "" && s.From == "" {
		fallback(model.ChannelSMS)
	} else {
		p, err := NewSMSProvider(SMSConfig{
			AccountSID: s.AccountSID, AuthToken: s.AuthToken, From: s.From, Endpoint: s.Endpoint,
			RateLimit: s.RateLimit, Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(p)
	}

	if c := cfg.Chat; c.AccessToken == "" && c.PhoneNumberID == "" {
		fallback(model.ChannelChat)
	} else {
		p, err := NewChatProvider(ChatConfig{
			AccessToken: c.AccessToken, PhoneNumberID: c.PhoneNumberID, Endpoint: c.Endpoint,
			RateLimit: c.RateLimit, Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(p)
	}

	return reg, nil
}
