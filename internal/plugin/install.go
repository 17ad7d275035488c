package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
	"github.com/hearthfin/hearth/internal/plugin/parsers/ofx"
	"github.com/hearthfin/hearth/internal/plugin/parsers/pdftable"
	"github.com/hearthfin/hearth/internal/plugin/parsers/rocketmoney"
	"github.com/hearthfin/hearth/internal/plugin/parsers/schemafile"
	"github.com/hearthfin/hearth/internal/plugin/parsers/xlsx"
	"github.com/hearthfin/hearth/internal/plugin/providers/gemini"
	"github.com/hearthfin/hearth/internal/plugin/providers/openaicompat"
)

// Config carries the settings built-in plugins need at construction time.
type Config struct {
	SchemaDir string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	ProviderTimeout time.Duration
	ProviderRPS     float64

	Executor *resilience.Executor
}

// Install registers every built-in parser and provider on reg. The table is
// static so the full plugin set is visible in one place; adding a plugin
// means adding a row. A constructor failure is logged and skipped, one bad
// entry must not take down the rest. Parser order matters: specific formats
// come before the generic schema-driven one.
func Install(ctx context.Context, reg *Registry, cfg Config) error {
	type entry struct {
		kind  string
		name  string
		build func() error
	}

	table := []entry{
		{"parser", rocketmoney.Name, func() error {
			reg.RegisterParser(rocketmoney.Name, rocketmoney.New())
			return nil
		}},
		{"parser", ofx.Name, func() error {
			reg.RegisterParser(ofx.Name, ofx.New())
			return nil
		}},
		{"parser", xlsx.Name, func() error {
			reg.RegisterParser(xlsx.Name, xlsx.New())
			return nil
		}},
		{"parser", pdftable.Name, func() error {
			reg.RegisterParser(pdftable.Name, pdftable.New())
			return nil
		}},
		{"parser", schemafile.Name, func() error {
			if cfg.SchemaDir == "" {
				return errors.New("schema dir not configured")
			}
			p, err := schemafile.New(cfg.SchemaDir)
			if err != nil {
				return err
			}
			reg.RegisterParser(schemafile.Name, p)
			return nil
		}},
		{"provider", openaicompat.Name, func() error {
			if cfg.OpenAIBaseURL == "" {
				return errors.New("base url not configured")
			}
			reg.RegisterProvider(openaicompat.Name, openaicompat.New(
				cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel,
				openaicompat.Options{
					Timeout:           cfg.ProviderTimeout,
					RequestsPerSecond: cfg.ProviderRPS,
					Executor:          cfg.Executor,
				}))
			return nil
		}},
		{"provider", gemini.Name, func() error {
			if cfg.GeminiAPIKey == "" {
				return errors.New("api key not configured")
			}
			p, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return err
			}
			reg.RegisterProvider(gemini.Name, p)
			return nil
		}},
	}

	for _, e := range table {
		if err := e.build(); err != nil {
			slog.Warn("plugin_install_skipped", "kind", e.kind, "name", e.name, "error", err)
		}
	}

	if len(reg.ParserNames()) == 0 {
		return fmt.Errorf("plugin install: no parsers registered")
	}
	slog.Info("plugins_installed",
		"parsers", reg.ParserNames(),
		"providers", reg.ProviderNames(),
	)
	return nil
}
