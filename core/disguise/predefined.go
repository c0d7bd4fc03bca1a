package disguise

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/user"
)

// Predefined settings
const (
	SettingNameSet  = "nameset"
	SettingFallback = "fallback"
)

type predefinedSettings struct {
	NameSet  string `json:"nameset" validate:"required,uuid"`
	Fallback string `json:"fallback" validate:"aliasname"`
}

// PredefinedPlugin hands every user a stable alias out of a predefined NameSet.
// Users that cannot get one (set not active, pool exhausted) are shown the fallback alias.
type PredefinedPlugin struct {
	validate        *validator.Validate
	sets            NameSetRepository
	defaultFallback string
}

var _ Plugin = (*PredefinedPlugin)(nil) // interface compliance check

func NewPredefinedPlugin(validate *validator.Validate, sets NameSetRepository, defaultFallback string) *PredefinedPlugin {
	if defaultFallback = core.CleanString(defaultFallback); defaultFallback == "" {
		defaultFallback = fallbackAlias
	}
	return &PredefinedPlugin{validate: validate, sets: sets, defaultFallback: defaultFallback}
}

func (p *PredefinedPlugin) Variant() string { return VariantPredefined }

func (p *PredefinedPlugin) DisplayName(ctx context.Context, usr user.User, opts DisplayOptions) (string, error) {
	setID := opts.Config.Get(SettingNameSet)
	if setID == "" {
		return "", ErrUnconfigured
	}
	fallback := opts.Config.Get(SettingFallback)
	if fallback == "" {
		fallback = p.defaultFallback
	}

	alias, err := p.sets.AssignAlias(ctx, setID, usr.ID)
	switch errors.Cause(err) {
	case nil:
		return alias.Name, nil
	case ErrSetNotActive, ErrPoolExhausted:
		return fallback, nil
	case ErrNameSetNotFound:
		return "", ErrUnconfigured
	default:
		return "", errors.Wrap(err, "assigning alias")
	}
}

func (p *PredefinedPlugin) RequiresUserConfiguration() bool { return true }

func (p *PredefinedPlugin) ConfigDefaults() Config {
	return Config{SettingFallback: p.defaultFallback}
}

func (p *PredefinedPlugin) ValidateConfig(ctx context.Context, dctx Context, stored, cfg Config) (Config, error) {
	if flds := checkSettingKeys(cfg, SettingNameSet, SettingFallback); len(flds) > 0 {
		return nil, core.NewValidationError(ErrInvalidConfig, flds...)
	}
	settings := predefinedSettings{
		NameSet:  core.CleanString(cfg.Get(SettingNameSet), true /* lower */),
		Fallback: core.CleanString(cfg.Get(SettingFallback)),
	}
	if err := p.validate.Struct(settings); err != nil {
		return nil, err
	}

	// the set must belong to the context & still be able to hand out aliases
	ns, err := p.sets.GetNameSet(ctx, settings.NameSet)
	if err != nil {
		if errors.Cause(err) == ErrNameSetNotFound {
			return nil, core.NewValidationError(ErrInvalidConfig, core.FieldError{Field: SettingNameSet, Error: ErrNameSetNotFound.Error()})
		}
		return nil, errors.Wrap(err, "getting name set")
	}
	if ns.ContextID != dctx.ID {
		return nil, core.NewValidationError(ErrInvalidConfig, core.FieldError{Field: SettingNameSet, Error: ErrNameSetNotFound.Error()})
	}
	// a retired set may stay bound but cannot be newly chosen
	if ns.State == StateRetired && settings.NameSet != stored.Get(SettingNameSet) {
		return nil, core.NewValidationError(ErrInvalidConfig, core.FieldError{Field: SettingNameSet, Error: "name set is retired"})
	}

	return Config{SettingNameSet: settings.NameSet, SettingFallback: settings.Fallback}, nil
}

func (p *PredefinedPlugin) NavigationEntries(dctx Context) []NavEntry {
	return []NavEntry{
		{Key: "disguise_settings", Label: "Disguise settings", URL: settingsURL(dctx)},
		{Key: "disguise_namesets", Label: "Predefined names", URL: "/v1/contexts/" + dctx.ID + "/namesets"},
	}
}
