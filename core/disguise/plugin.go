package disguise

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core/user"
)

// Variants
const (
	VariantBasic      = "basic"
	VariantPredefined = "predefined"
)

// Plugin is implemented by every disguise variant.
type Plugin interface {
	// Variant is the identifier the binding is stored under.
	Variant() string
	// DisplayName computes the alias shown for usr. It must be deterministic for a given
	// (context, user, configuration). ErrUnconfigured makes the resolver show the real identity.
	DisplayName(ctx context.Context, usr user.User, opts DisplayOptions) (string, error)
	// RequiresUserConfiguration reports whether an admin must complete setup before activation.
	RequiresUserConfiguration() bool
	// ConfigDefaults are used for every setting with no stored value.
	ConfigDefaults() Config
	// ValidateConfig checks the shape of cfg (defaults overlaid with stored and submitted settings)
	// and returns its cleaned version. stored holds the settings currently saved for the context.
	ValidateConfig(ctx context.Context, dctx Context, stored, cfg Config) (Config, error)
	NavigationEntries(dctx Context) []NavEntry
}

// Registry is the closed set of variants a binding can select.
type Registry struct {
	plugins  map[string]Plugin
	variants []string
}

func NewRegistry(plugins ...Plugin) *Registry {
	reg := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		if _, ok := reg.plugins[p.Variant()]; ok {
			continue
		}
		reg.plugins[p.Variant()] = p
		reg.variants = append(reg.variants, p.Variant())
	}
	return reg
}

// NewDefaultRegistry returns a Registry holding the basic and predefined variants.
func NewDefaultRegistry(validate *validator.Validate, sets NameSetRepository, defaultAlias string) *Registry {
	return NewRegistry(
		NewBasicPlugin(validate, defaultAlias),
		NewPredefinedPlugin(validate, sets, defaultAlias),
	)
}

func (reg *Registry) Get(variant string) (Plugin, error) {
	if p, ok := reg.plugins[variant]; ok {
		return p, nil
	}
	return nil, errors.Wrap(ErrUnknownVariant, variant)
}

// Variants returns the registered variant identifiers in registration order.
func (reg *Registry) Variants() []string {
	variants := make([]string, len(reg.variants))
	copy(variants, reg.variants)
	return variants
}

func settingsURL(dctx Context) string {
	return "/v1/contexts/" + dctx.ID + "/disguise"
}
