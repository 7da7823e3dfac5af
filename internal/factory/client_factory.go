package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/adapters/sfmcrest"
	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/retry"
)

// ClientFactory creates the platform metadata client from configuration.
type ClientFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClientFactory creates a new client factory.
func NewClientFactory(cfg *config.Config, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{cfg: cfg, logger: logger}
}

// CreateRetryPolicy builds the retry policy shared by every platform call.
func (f *ClientFactory) CreateRetryPolicy() retry.Policy {
	r := f.cfg.GetRetry()
	policy := retry.Default()
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelay > 0 {
		policy.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		policy.MaxDelay = r.MaxDelay
	}
	if r.Jitter > 0 {
		policy.Jitter = r.Jitter
	}
	return policy
}

// CreateMetadataClient creates the REST metadata client. Token acquisition
// is out of scope; a pre-acquired token from config is wrapped as a static
// provider unless the caller injects its own.
func (f *ClientFactory) CreateMetadataClient(tokens core.TokenProvider) (core.MetadataClient, error) {
	s := f.cfg.GetSFMC()
	if tokens == nil {
		if s.AccessToken == "" {
			return nil, fmt.Errorf("no token provider and no sfmc.access_token configured")
		}
		tokens = sfmcrest.StaticToken(s.AccessToken)
	}
	return sfmcrest.New(sfmcrest.Config{
		BaseURL:         s.BaseURL,
		PageSize:        s.PageSize,
		RequestInterval: s.RequestInterval,
		HTTPTimeout:     s.HTTPTimeout,
		Retry:           f.CreateRetryPolicy(),
	}, tokens, f.logger)
}
