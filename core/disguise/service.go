package disguise

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/user"
)

type ServiceDeps struct {
	Repo       Repository
	NameSets   NameSetRepository
	Reveals    RevealStore
	Users      UserGetter
	Plugins    *Registry
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
}

type Service struct {
	repo       Repository
	sets       NameSetRepository
	reveals    RevealStore
	users      UserGetter
	plugins    *Registry
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		repo:       deps.Repo,
		sets:       deps.NameSets,
		reveals:    deps.Reveals,
		users:      deps.Users,
		plugins:    deps.Plugins,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
	}
}

// NewRevealStore picks the RevealStore matching the configured persistence.
func NewRevealStore(conf *core.Config, persistent RevealStore) RevealStore {
	if conf.Disguise.RevealPersistence == core.RevealSession {
		return NewSessionRevealStore(conf.Disguise.RevealTTL)
	}
	return persistent
}

// Variants returns the variants a Context can be bound to.
func (svc *Service) Variants() []string {
	return svc.plugins.Variants()
}

// =========================================================================
// Contexts

func (svc *Service) CreateContext(ctx context.Context, nc NewContext) (Context, error) {
	if nc.ParentID != "" {
		if _, err := svc.repo.GetContext(ctx, nc.ParentID); err != nil {
			if errors.Cause(err) == ErrUnknownContext {
				return Context{}, core.NewValidationError(err, core.FieldError{Field: "parent_id", Error: err.Error()})
			}
			return Context{}, errors.Wrap(err, "getting parent context")
		}
	}
	c := Context{
		ID:        uuid.New().String(),
		Level:     nc.Level,
		Name:      nc.Name,
		ParentID:  nc.ParentID,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateContext(ctx, c)
}

func (svc *Service) GetContext(ctx context.Context, id string) (Context, error) {
	return svc.repo.GetContext(ctx, id)
}

func (svc *Service) QueryContexts(ctx context.Context, filter *ContextFilter, ordering []core.DBOrdering) ([]Context, error) {
	return svc.repo.QueryContexts(ctx, filter, core.CleanOrderings(ordering, "name", "level", "created_at"))
}

// DeleteContext removes a Context and everything bound to it. Contexts with children cannot be deleted.
func (svc *Service) DeleteContext(ctx context.Context, id string) error {
	if _, err := svc.repo.GetContext(ctx, id); err != nil {
		return err
	}
	children, err := svc.repo.QueryContexts(ctx, &ContextFilter{ParentID: id}, nil)
	if err != nil {
		return errors.Wrap(err, "querying child contexts")
	}
	if len(children) > 0 {
		return core.NewValidationError(ErrHasChildren)
	}
	if err = svc.repo.DeleteContext(ctx, id); err != nil {
		return errors.Wrap(err, "deleting context")
	}
	return errors.Wrap(svc.reveals.ClearRevealStates(ctx, id), "clearing reveal states")
}

// =========================================================================
// Bindings & configuration

// GetBinding returns ErrNoBinding when the context is not bound.
func (svc *Service) GetBinding(ctx context.Context, contextID string) (Binding, error) {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return Binding{}, err
	}
	return svc.repo.GetBinding(ctx, contextID)
}

// Bind binds the context to variant. Binding to another variant discards the stored configuration.
func (svc *Service) Bind(ctx context.Context, contextID, variant string) (Binding, error) {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return Binding{}, err
	}
	plugin, err := svc.plugins.Get(core.CleanString(variant, true /* lower */))
	if err != nil {
		return Binding{}, core.NewValidationError(ErrUnknownVariant, core.FieldError{Field: "variant", Error: ErrUnknownVariant.Error()})
	}

	existing, err := svc.repo.GetBinding(ctx, contextID)
	switch errors.Cause(err) {
	case nil:
		if existing.Variant == plugin.Variant() {
			return existing, nil
		}
	case ErrNoBinding:
	default:
		return Binding{}, errors.Wrap(err, "getting binding")
	}

	now := time.Now().UTC()
	b := Binding{
		ContextID:  contextID,
		Variant:    plugin.Variant(),
		Configured: !plugin.RequiresUserConfiguration(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	b, err = svc.repo.BindContext(ctx, b)
	if err != nil {
		return Binding{}, errors.Wrap(err, "binding context")
	}
	svc.logger.Info(fmt.Sprintf("disguise %q bound to context %s", b.Variant, contextID))
	return b, nil
}

// Unbind removes the binding of the context; identities are shown again.
func (svc *Service) Unbind(ctx context.Context, contextID string) error {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return err
	}
	if err := svc.repo.DeleteBinding(ctx, contextID); err != nil {
		return err
	}
	svc.logger.Info(fmt.Sprintf("disguise unbound from context %s", contextID))
	return errors.Wrap(svc.reveals.ClearRevealStates(ctx, contextID), "clearing reveal states")
}

// Setup validates the submitted settings against the bound variant and persists them atomically.
// Submitted settings are overlaid on the stored ones. Invalid settings yield a *core.ValidationError.
func (svc *Service) Setup(ctx context.Context, contextID string, settings Config) (Binding, error) {
	dctx, binding, plugin, err := svc.bound(ctx, contextID)
	if err != nil {
		if err == ErrNoBinding {
			return Binding{}, core.NewValidationError(err)
		}
		return Binding{}, err
	}

	stored, err := svc.repo.GetConfig(ctx, contextID)
	if err != nil {
		return Binding{}, errors.Wrap(err, "getting config")
	}
	cfg, err := plugin.ValidateConfig(ctx, dctx, stored, plugin.ConfigDefaults().Merge(stored).Merge(settings))
	if err != nil {
		return Binding{}, core.TranslateValidationErrors(err, svc.translator)
	}

	binding, err = svc.repo.ConfigureBinding(ctx, binding.ContextID, cfg)
	if err != nil {
		return Binding{}, errors.Wrap(err, "configuring binding")
	}
	return binding, nil
}

// GetConfig returns the effective configuration: variant defaults overlaid with the stored settings.
func (svc *Service) GetConfig(ctx context.Context, contextID string) (Config, error) {
	_, _, plugin, err := svc.bound(ctx, contextID)
	if err != nil {
		if err == ErrNoBinding {
			return svc.repo.GetConfig(ctx, contextID)
		}
		return nil, err
	}
	stored, err := svc.repo.GetConfig(ctx, contextID)
	if err != nil {
		return nil, errors.Wrap(err, "getting config")
	}
	return plugin.ConfigDefaults().Merge(stored), nil
}

// SetConfig validates and stores a single setting. It does not mark the binding configured.
func (svc *Service) SetConfig(ctx context.Context, contextID, key, value string) error {
	dctx, _, plugin, err := svc.bound(ctx, contextID)
	if err != nil {
		if err == ErrNoBinding {
			return core.NewValidationError(err)
		}
		return err
	}
	stored, err := svc.repo.GetConfig(ctx, contextID)
	if err != nil {
		return errors.Wrap(err, "getting config")
	}
	cfg, err := plugin.ValidateConfig(ctx, dctx, stored, plugin.ConfigDefaults().Merge(stored).Merge(Config{key: value}))
	if err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return errors.Wrap(svc.repo.SetConfig(ctx, contextID, key, cfg.Get(key)), "setting config")
}

// Describe returns the disguise overview of a context for the admin surface.
func (svc *Service) Describe(ctx context.Context, contextID string) (Overview, error) {
	dctx, err := svc.repo.GetContext(ctx, contextID)
	if err != nil {
		return Overview{}, err
	}
	ov := Overview{Context: dctx, Settings: Config{}, Navigation: []NavEntry{}, Variants: svc.Variants()}

	ad, err := svc.activeDisguise(ctx, dctx)
	switch errors.Cause(err) {
	case nil:
		ov.Active = true
	case ErrNoBinding:
		return ov, nil
	case ErrUnconfigured:
	default:
		return Overview{}, err
	}

	binding, err := svc.repo.GetBinding(ctx, contextID)
	if err != nil {
		return Overview{}, errors.Wrap(err, "getting binding")
	}
	ov.Binding = &binding
	if ad != nil {
		ov.Settings = ad.config
		ov.Navigation = ad.plugin.NavigationEntries(dctx)
	} else if plugin, err := svc.plugins.Get(binding.Variant); err == nil {
		stored, err := svc.repo.GetConfig(ctx, contextID)
		if err != nil {
			return Overview{}, errors.Wrap(err, "getting config")
		}
		ov.Settings = plugin.ConfigDefaults().Merge(stored)
		ov.Navigation = plugin.NavigationEntries(dctx)
	}
	return ov, nil
}

// =========================================================================
// Reveal

// SetRevealState toggles whether viewerID sees real identities in the context.
func (svc *Service) SetRevealState(ctx context.Context, contextID, viewerID string, reveal bool) error {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return err
	}
	return errors.Wrap(svc.reveals.SetRevealState(ctx, contextID, viewerID, reveal), "setting reveal state")
}

func (svc *Service) RevealState(ctx context.Context, contextID, viewerID string) (bool, error) {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return false, err
	}
	return svc.reveals.RevealState(ctx, contextID, viewerID)
}

// =========================================================================
// Resolution

type activeDisguise struct {
	binding Binding
	plugin  Plugin
	config  Config
}

// activeDisguise returns ErrNoBinding or ErrUnconfigured when identities must not be disguised.
func (svc *Service) activeDisguise(ctx context.Context, dctx Context) (*activeDisguise, error) {
	binding, err := svc.repo.GetBinding(ctx, dctx.ID)
	if err != nil {
		if errors.Cause(err) == ErrNoBinding {
			return nil, ErrNoBinding
		}
		return nil, errors.Wrap(err, "getting binding")
	}
	plugin, err := svc.plugins.Get(binding.Variant)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("context %s is bound to unknown variant %q", dctx.ID, binding.Variant), err)
		return nil, ErrUnconfigured
	}
	if plugin.RequiresUserConfiguration() && !binding.Configured {
		return nil, ErrUnconfigured
	}
	stored, err := svc.repo.GetConfig(ctx, dctx.ID)
	if err != nil {
		return nil, errors.Wrap(err, "getting config")
	}
	return &activeDisguise{
		binding: binding,
		plugin:  plugin,
		config:  plugin.ConfigDefaults().Merge(stored),
	}, nil
}

// ResolveDisplayName returns the name viewerID sees for userID in the context:
//  1. no binding: the real identity
//  2. reveal state of the viewer set: the real identity
//  3. otherwise the alias computed by the bound variant
// An unconfigured binding is treated as inactive.
func (svc *Service) ResolveDisplayName(ctx context.Context, contextID, userID, viewerID string) (string, error) {
	names, err := svc.ResolveDisplayNames(ctx, contextID, viewerID, userID)
	if err != nil {
		return "", err
	}
	return names[userID], nil
}

// ResolveDisplayNames resolves the display names of several users for one viewer.
func (svc *Service) ResolveDisplayNames(ctx context.Context, contextID, viewerID string, userIDs ...string) (map[string]string, error) {
	dctx, err := svc.repo.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}

	users := make([]user.User, 0, len(userIDs))
	for _, id := range userIDs {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting user")
		}
		users = append(users, usr)
	}

	names := make(map[string]string, len(users))
	realNames := func() map[string]string {
		for _, usr := range users {
			names[usr.ID] = usr.RealName()
		}
		return names
	}

	ad, err := svc.activeDisguise(ctx, dctx)
	switch errors.Cause(err) {
	case nil:
	case ErrNoBinding, ErrUnconfigured:
		return realNames(), nil
	default:
		return nil, err
	}

	revealed, err := svc.reveals.RevealState(ctx, dctx.ID, viewerID)
	if err != nil {
		return nil, errors.Wrap(err, "getting reveal state")
	}
	if revealed {
		return realNames(), nil
	}

	opts := DisplayOptions{Context: dctx, Config: ad.config}
	for _, usr := range users {
		name, err := ad.plugin.DisplayName(ctx, usr, opts)
		if err != nil {
			if errors.Cause(err) != ErrUnconfigured {
				return nil, errors.Wrap(err, "computing display name")
			}
			svc.logger.Warn(fmt.Sprintf("disguise %q of context %s is unconfigured", ad.binding.Variant, dctx.ID))
			name = usr.RealName()
		}
		names[usr.ID] = name
	}
	return names, nil
}

// bound returns the context, its binding and the bound plugin. ErrNoBinding when the context is not bound.
func (svc *Service) bound(ctx context.Context, contextID string) (Context, Binding, Plugin, error) {
	dctx, err := svc.repo.GetContext(ctx, contextID)
	if err != nil {
		return Context{}, Binding{}, nil, err
	}
	binding, err := svc.repo.GetBinding(ctx, contextID)
	if err != nil {
		if errors.Cause(err) == ErrNoBinding {
			return Context{}, Binding{}, nil, ErrNoBinding
		}
		return Context{}, Binding{}, nil, errors.Wrap(err, "getting binding")
	}
	plugin, err := svc.plugins.Get(binding.Variant)
	if err != nil {
		return Context{}, Binding{}, nil, core.NewValidationError(ErrUnknownVariant, core.FieldError{Field: "variant", Error: ErrUnknownVariant.Error()})
	}
	return dctx, binding, plugin, nil
}
