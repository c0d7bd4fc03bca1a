package disguise

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/user"
)

// Basic settings
const SettingAlias = "alias"

const fallbackAlias = "Anonymous"

type basicSettings struct {
	Alias string `json:"alias" validate:"aliasname"`
}

// BasicPlugin shows the same configured alias for every user of the context.
type BasicPlugin struct {
	validate     *validator.Validate
	defaultAlias string
}

var _ Plugin = (*BasicPlugin)(nil) // interface compliance check

func NewBasicPlugin(validate *validator.Validate, defaultAlias string) *BasicPlugin {
	if defaultAlias = core.CleanString(defaultAlias); defaultAlias == "" {
		defaultAlias = fallbackAlias
	}
	return &BasicPlugin{validate: validate, defaultAlias: defaultAlias}
}

func (p *BasicPlugin) Variant() string { return VariantBasic }

func (p *BasicPlugin) DisplayName(_ context.Context, _ user.User, opts DisplayOptions) (string, error) {
	alias := opts.Config.Get(SettingAlias)
	if alias == "" {
		return "", ErrUnconfigured
	}
	return alias, nil
}

func (p *BasicPlugin) RequiresUserConfiguration() bool { return false }

func (p *BasicPlugin) ConfigDefaults() Config {
	return Config{SettingAlias: p.defaultAlias}
}

func (p *BasicPlugin) ValidateConfig(_ context.Context, _ Context, _, cfg Config) (Config, error) {
	if flds := checkSettingKeys(cfg, SettingAlias); len(flds) > 0 {
		return nil, core.NewValidationError(ErrInvalidConfig, flds...)
	}
	settings := basicSettings{Alias: core.CleanString(cfg.Get(SettingAlias))}
	if err := p.validate.Struct(settings); err != nil {
		return nil, err
	}
	return Config{SettingAlias: settings.Alias}, nil
}

func (p *BasicPlugin) NavigationEntries(dctx Context) []NavEntry {
	return []NavEntry{
		{Key: "disguise_settings", Label: "Disguise settings", URL: settingsURL(dctx)},
	}
}
