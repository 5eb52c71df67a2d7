package cli

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/steadycalls/mailforge/internal/cloudflare"
	"github.com/steadycalls/mailforge/internal/config"
	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/domain"
	"github.com/steadycalls/mailforge/internal/forwardemail"
	"github.com/steadycalls/mailforge/internal/httpclient"
	"github.com/steadycalls/mailforge/internal/pipeline"
	"github.com/steadycalls/mailforge/internal/state"
)

// deps bundles the wired production dependencies shared by commands.
type deps struct {
	cfg    *config.Config
	store  *state.Store
	engine *pipeline.Engine
}

// loadConfig reads configuration honoring the --config flag and attaches
// the CLI logger to the context for config debug output.
func loadConfig(ctx context.Context, flags *GlobalFlags, logger zerolog.Logger) (*config.Config, error) {
	return config.Load(logger.WithContext(ctx), flags.ConfigPath)
}

// openStore opens the state store at the configured path.
func openStore(cfg *config.Config, logger zerolog.Logger) (*state.Store, error) {
	return state.New(cfg.State.Path, logger)
}

// buildDeps wires the full production dependency graph: resilient invoker,
// both provider clients, state store, and pipeline engine. Requires
// provider credentials.
func buildDeps(ctx context.Context, flags *GlobalFlags, logger zerolog.Logger) (*deps, error) {
	cfg, err := loadConfig(ctx, flags, logger)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateCredentials(cfg); err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	invoker := httpclient.New(httpclient.RetryConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialDelay:   cfg.Retry.InitialDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		RateLimitDelay: cfg.Retry.RateLimitDelay,
		JitterMax:      constants.DefaultRetryJitterMax,
	}, logger)

	mail := forwardemail.NewClient(
		cfg.Providers.ForwardEmail.BaseURL,
		cfg.Providers.ForwardEmail.APIKey,
		invoker, logger)

	dns := cloudflare.NewClient(
		cfg.Providers.Cloudflare.BaseURL,
		cfg.Providers.Cloudflare.APIToken,
		invoker, logger)

	engine := pipeline.NewEngine(store, mail, dns, pipeline.Config{
		Concurrency:        cfg.Provisioning.Concurrency,
		Aliases:            configAliases(cfg),
		EnhancedProtection: cfg.Provisioning.EnhancedProtection,
		PollInterval:       cfg.Verification.PollInterval,
		MaxPollAttempts:    cfg.Verification.MaxAttempts,
		PollTimeout:        cfg.Verification.Timeout,
	}, logger)

	return &deps{cfg: cfg, store: store, engine: engine}, nil
}

// configAliases converts configured aliases to the pipeline's alias type.
func configAliases(cfg *config.Config) []domain.Alias {
	aliases := make([]domain.Alias, 0, len(cfg.Provisioning.Aliases))
	for _, a := range cfg.Provisioning.Aliases {
		aliases = append(aliases, domain.Alias{
			Name:        a.Name,
			Recipients:  a.Recipients,
			Description: a.Description,
			Labels:      a.Labels,
		})
	}
	return aliases
}
