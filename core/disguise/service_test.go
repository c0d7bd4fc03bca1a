package disguise_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
	"github.com/trezcool/masomo-disguise/services/logger"
	"github.com/trezcool/masomo-disguise/storage/database/inmem"
)

type fixture struct {
	svc      *disguise.Service
	usrRepo  user.Repository
	reveals  disguise.RevealStore
	validate *validator.Validate
}

func setup(t *testing.T, reveals ...disguise.RevealStore) *fixture {
	t.Helper()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	disguise.InitValidators(validate, translator)

	db := inmemdb.Open()
	repo := inmemdb.NewDisguiseRepository(db)
	sets := inmemdb.NewNameSetRepository(db)
	usrRepo := inmemdb.NewUserRepository(db)

	var revealStore disguise.RevealStore = repo
	if len(reveals) > 0 {
		revealStore = reveals[0]
	}

	svc := disguise.NewService(disguise.ServiceDeps{
		Repo:       repo,
		NameSets:   sets,
		Reveals:    revealStore,
		Users:      user.NewService(usrRepo),
		Plugins:    disguise.NewDefaultRegistry(validate, sets, "Anonymous"),
		Validate:   validate,
		Translator: translator,
		Logger:     logsvc.NewTestLogger(),
	})
	return &fixture{svc: svc, usrRepo: usrRepo, reveals: revealStore, validate: validate}
}

func (f *fixture) createUser(t *testing.T, name, uname string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr, err := f.usrRepo.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  uname,
		Email:     uname + "@masomo.cd",
		IsActive:  true,
		Roles:     []string{user.RoleStudent},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return usr
}

func (f *fixture) createContext(t *testing.T, name string, parentID ...string) disguise.Context {
	t.Helper()
	nc := disguise.NewContext{Level: disguise.LevelCourse, Name: name}
	if len(parentID) > 0 {
		nc.Level = disguise.LevelModule
		nc.ParentID = parentID[0]
	}
	require.NoError(t, nc.Validate(f.validate))
	c, err := f.svc.CreateContext(context.Background(), nc)
	require.NoError(t, err)
	return c
}

func (f *fixture) createNameSet(t *testing.T, contextID string, aliases ...string) disguise.NameSet {
	t.Helper()
	ns, err := f.svc.CreateNameSet(context.Background(), contextID, disguise.NewNameSet{Name: "Greek", Aliases: aliases})
	require.NoError(t, err)
	return ns
}

func (f *fixture) resolve(t *testing.T, contextID, userID, viewerID string) string {
	t.Helper()
	name, err := f.svc.ResolveDisplayName(context.Background(), contextID, userID, viewerID)
	require.NoError(t, err)
	return name
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.Truef(t, ok, "want *core.ValidationError, got %T (%v)", err, err)
	return vErr.FieldMap()
}

func TestResolveDisplayName_NoBinding(t *testing.T) {
	f := setup(t)
	c := f.createContext(t, "Maths")
	usr := f.createUser(t, "Real Name", "real")
	viewer := f.createUser(t, "Viewer", "viewer")

	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr.ID, viewer.ID))

	// real identity falls back to the username
	noName := f.createUser(t, "", "noname")
	assert.Equal(t, "noname", f.resolve(t, c.ID, noName.ID, viewer.ID))
}

func TestResolveDisplayName_Basic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr1 := f.createUser(t, "Real Name", "real")
	usr2 := f.createUser(t, "Other Name", "other")
	viewer7 := f.createUser(t, "Viewer Seven", "viewer7")
	viewer8 := f.createUser(t, "Viewer Eight", "viewer8")

	b, err := f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)
	assert.True(t, b.Configured)

	for _, usr := range []user.User{usr1, usr2} {
		for i := 0; i < 3; i++ {
			assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr.ID, viewer7.ID))
		}
	}

	// reveal wins for the viewer that toggled it only
	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, viewer7.ID, true))
	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr1.ID, viewer7.ID))
	assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr1.ID, viewer8.ID))

	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, viewer7.ID, false))
	assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr1.ID, viewer7.ID))
}

func TestResolveDisplayName_UnknownContext(t *testing.T) {
	f := setup(t)
	usr := f.createUser(t, "Real Name", "real")

	_, err := f.svc.ResolveDisplayName(context.Background(), "d6f1c4c2-0000-4000-8000-000000000000", usr.ID, usr.ID)
	assert.Equal(t, disguise.ErrUnknownContext, errors.Cause(err))
}

func TestResolveDisplayName_UnknownUser(t *testing.T) {
	f := setup(t)
	c := f.createContext(t, "Maths")

	_, err := f.svc.ResolveDisplayName(context.Background(), c.ID, "missing", "missing")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestResolveDisplayName_Predefined(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr1 := f.createUser(t, "User One", "one")
	usr2 := f.createUser(t, "User Two", "two")
	usr3 := f.createUser(t, "User Three", "three")
	viewer := f.createUser(t, "Viewer", "viewer")

	ns := f.createNameSet(t, c.ID, "Alpha", "Beta")
	_, err := f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)

	b, err := f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	assert.False(t, b.Configured)

	// unconfigured: treated as inactive
	assert.Equal(t, "User One", f.resolve(t, c.ID, usr1.ID, viewer.ID))

	b, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: ns.ID})
	require.NoError(t, err)
	assert.True(t, b.Configured)

	assert.Equal(t, "Alpha", f.resolve(t, c.ID, usr1.ID, viewer.ID))
	assert.Equal(t, "Beta", f.resolve(t, c.ID, usr2.ID, viewer.ID))
	assert.Equal(t, "Alpha", f.resolve(t, c.ID, usr1.ID, viewer.ID))

	// pool exhausted: fallback alias, never the real name
	assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr3.ID, viewer.ID))

	// retiring keeps assigned aliases
	_, err = f.svc.RetireNameSet(ctx, ns.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", f.resolve(t, c.ID, usr1.ID, viewer.ID))
	assert.Equal(t, "Beta", f.resolve(t, c.ID, usr2.ID, viewer.ID))

	alias, err := f.svc.AliasOf(ctx, ns.ID, usr3.ID)
	assert.Equal(t, disguise.ErrNotAssigned, errors.Cause(err))
	assert.Empty(t, alias.Name)
}

func TestResolveDisplayName_PredefinedAvailability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr1 := f.createUser(t, "User One", "one")
	usr2 := f.createUser(t, "User Two", "two")
	usr3 := f.createUser(t, "User Three", "three")

	ns := f.createNameSet(t, c.ID, "Alpha", "Beta", "Gamma")
	_, err := f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)
	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: ns.ID, disguise.SettingFallback: "Someone"})
	require.NoError(t, err)

	// unavailable aliases are skipped
	_, err = f.svc.SetAliasAvailability(ctx, ns.ID, ns.Aliases[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Beta", f.resolve(t, c.ID, usr1.ID, usr1.ID))

	// ...but stay with their holder
	_, err = f.svc.SetAliasAvailability(ctx, ns.ID, ns.Aliases[1].ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Beta", f.resolve(t, c.ID, usr1.ID, usr1.ID))
	assert.Equal(t, "Gamma", f.resolve(t, c.ID, usr2.ID, usr1.ID))
	assert.Equal(t, "Someone", f.resolve(t, c.ID, usr3.ID, usr1.ID))

	// aliases added to an active set are handed out
	_, err = f.svc.AddAlias(ctx, ns.ID, disguise.NewAlias{Name: " Delta "})
	require.NoError(t, err)
	assert.Equal(t, "Delta", f.resolve(t, c.ID, usr3.ID, usr1.ID))
}

func TestResolveDisplayNames(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr1 := f.createUser(t, "User One", "one")
	usr2 := f.createUser(t, "User Two", "two")

	ns := f.createNameSet(t, c.ID, "Alpha", "Beta")
	_, err := f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)
	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: ns.ID})
	require.NoError(t, err)

	names, err := f.svc.ResolveDisplayNames(ctx, c.ID, usr1.ID, usr1.ID, usr2.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{usr1.ID: "Alpha", usr2.ID: "Beta"}, names)

	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, usr1.ID, true))
	names, err = f.svc.ResolveDisplayNames(ctx, c.ID, usr1.ID, usr1.ID, usr2.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{usr1.ID: "User One", usr2.ID: "User Two"}, names)
}

func TestSetup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	other := f.createContext(t, "Physics")
	otherSet := f.createNameSet(t, other.ID, "Alpha")

	_, err := f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingAlias: "Ghost"})
	assert.Equal(t, map[string]string(nil), fieldErrors(t, err))
	assert.Equal(t, disguise.ErrNoBinding, errors.Cause(err).(*core.ValidationError).Err)

	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)

	tests := []struct {
		name       string
		settings   disguise.Config
		wantFields map[string]string
	}{
		{
			name:       "blank alias",
			settings:   disguise.Config{disguise.SettingAlias: "   "},
			wantFields: map[string]string{"alias": "an alias must contain 1 to 100 printable characters"},
		},
		{
			name:       "unknown setting",
			settings:   disguise.Config{"colour": "blue"},
			wantFields: map[string]string{"colour": "unknown setting"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Setup(ctx, c.ID, tc.settings)
			assert.Equal(t, tc.wantFields, fieldErrors(t, err))

			// nothing committed
			cfg, err := f.svc.GetConfig(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, disguise.Config{disguise.SettingAlias: "Anonymous"}, cfg)
		})
	}

	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingAlias: " Ghost "})
	require.NoError(t, err)
	cfg, err := f.svc.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, disguise.Config{disguise.SettingAlias: "Ghost"}, cfg)

	usr := f.createUser(t, "Real Name", "real")
	assert.Equal(t, "Ghost", f.resolve(t, c.ID, usr.ID, usr.ID))

	// predefined sets must belong to the context & not be retired
	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: otherSet.ID})
	assert.Equal(t, map[string]string{"nameset": "name set not found"}, fieldErrors(t, err))

	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: "not-a-uuid"})
	assert.Contains(t, fieldErrors(t, err), "nameset")

	ns := f.createNameSet(t, c.ID, "Alpha")
	_, err = f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)
	_, err = f.svc.RetireNameSet(ctx, ns.ID)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: ns.ID})
	assert.Equal(t, map[string]string{"nameset": "name set is retired"}, fieldErrors(t, err))
}

func TestSetup_RetiredNameSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	ns := f.createNameSet(t, c.ID, "Alpha", "Beta")
	_, err := f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)
	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingNameSet: ns.ID})
	require.NoError(t, err)

	hero := f.createUser(t, "Hero", "hero")
	assert.Equal(t, "Alpha", f.resolve(t, c.ID, hero.ID, hero.ID))
	_, err = f.svc.RetireNameSet(ctx, ns.ID)
	require.NoError(t, err)

	// the bound set stays valid for edits of the other settings
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingFallback: "Someone"})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetConfig(ctx, c.ID, disguise.SettingFallback, "Nobody"))
	cfg, err := f.svc.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, disguise.Config{disguise.SettingNameSet: ns.ID, disguise.SettingFallback: "Nobody"}, cfg)

	// holders keep their alias, newcomers get the fallback
	assert.Equal(t, "Alpha", f.resolve(t, c.ID, hero.ID, hero.ID))
	other := f.createUser(t, "Other", "other")
	assert.Equal(t, "Nobody", f.resolve(t, c.ID, other.ID, other.ID))

	// choosing another retired set is still refused
	retired := f.createNameSet(t, c.ID, "Gamma")
	_, err = f.svc.ActivateNameSet(ctx, retired.ID)
	require.NoError(t, err)
	_, err = f.svc.RetireNameSet(ctx, retired.ID)
	require.NoError(t, err)
	err = f.svc.SetConfig(ctx, c.ID, disguise.SettingNameSet, retired.ID)
	assert.Equal(t, map[string]string{"nameset": "name set is retired"}, fieldErrors(t, err))
}

func TestSetConfig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")

	err := f.svc.SetConfig(ctx, c.ID, disguise.SettingAlias, "Ghost")
	assert.True(t, core.IsValidationError(err))

	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetConfig(ctx, c.ID, disguise.SettingAlias, "Ghost"))
	require.NoError(t, f.svc.SetConfig(ctx, c.ID, disguise.SettingAlias, "Phantom"))
	cfg, err := f.svc.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Phantom", cfg.Get(disguise.SettingAlias))

	err = f.svc.SetConfig(ctx, c.ID, "colour", "blue")
	assert.Equal(t, map[string]string{"colour": "unknown setting"}, fieldErrors(t, err))
}

func TestBind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr := f.createUser(t, "Real Name", "real")

	_, err := f.svc.Bind(ctx, c.ID, "fancy")
	assert.Equal(t, map[string]string{"variant": "unknown disguise variant"}, fieldErrors(t, err))

	_, err = f.svc.Bind(ctx, "missing", disguise.VariantBasic)
	assert.Equal(t, disguise.ErrUnknownContext, errors.Cause(err))

	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)
	_, err = f.svc.Setup(ctx, c.ID, disguise.Config{disguise.SettingAlias: "Ghost"})
	require.NoError(t, err)

	// re-binding the same variant keeps the configuration
	_, err = f.svc.Bind(ctx, c.ID, " BASIC ")
	require.NoError(t, err)
	assert.Equal(t, "Ghost", f.resolve(t, c.ID, usr.ID, usr.ID))

	// another variant starts from scratch
	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	cfg, err := f.svc.GetConfig(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, disguise.Config{disguise.SettingFallback: "Anonymous"}, cfg)
	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr.ID, usr.ID))
}

func TestUnbind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr := f.createUser(t, "Real Name", "real")

	assert.Equal(t, disguise.ErrNoBinding, errors.Cause(f.svc.Unbind(ctx, c.ID)))

	_, err := f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, usr.ID, true))

	require.NoError(t, f.svc.Unbind(ctx, c.ID))
	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr.ID, usr.ID))

	revealed, err := f.svc.RevealState(ctx, c.ID, usr.ID)
	require.NoError(t, err)
	assert.False(t, revealed)

	_, err = f.svc.GetBinding(ctx, c.ID)
	assert.Equal(t, disguise.ErrNoBinding, errors.Cause(err))
}

func TestDescribe(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")

	ov, err := f.svc.Describe(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, ov.Binding)
	assert.False(t, ov.Active)
	assert.Equal(t, []string{disguise.VariantBasic, disguise.VariantPredefined}, ov.Variants)

	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantPredefined)
	require.NoError(t, err)
	ov, err = f.svc.Describe(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, ov.Binding)
	assert.False(t, ov.Active)
	assert.Equal(t, disguise.Config{disguise.SettingFallback: "Anonymous"}, ov.Settings)
	require.Len(t, ov.Navigation, 2)
	assert.Equal(t, "/v1/contexts/"+c.ID+"/namesets", ov.Navigation[1].URL)

	_, err = f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)
	ov, err = f.svc.Describe(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ov.Active)
	assert.Equal(t, disguise.Config{disguise.SettingAlias: "Anonymous"}, ov.Settings)
	assert.Equal(t, []disguise.NavEntry{
		{Key: "disguise_settings", Label: "Disguise settings", URL: "/v1/contexts/" + c.ID + "/disguise"},
	}, ov.Navigation)
}

func TestNameSetTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	ns := f.createNameSet(t, c.ID, "Alpha")
	assert.Equal(t, disguise.StateDraft, ns.State)

	_, err := f.svc.RetireNameSet(ctx, ns.ID)
	assert.Equal(t, disguise.ErrInvalidTransition, errors.Cause(err).(*core.ValidationError).Err)

	ns, err = f.svc.ActivateNameSet(ctx, ns.ID)
	require.NoError(t, err)
	assert.Equal(t, disguise.StateActive, ns.State)

	_, err = f.svc.ActivateNameSet(ctx, ns.ID)
	assert.True(t, core.IsValidationError(err))

	ns, err = f.svc.RetireNameSet(ctx, ns.ID)
	require.NoError(t, err)
	assert.Equal(t, disguise.StateRetired, ns.State)

	_, err = f.svc.ActivateNameSet(ctx, ns.ID)
	assert.True(t, core.IsValidationError(err))

	_, err = f.svc.AddAlias(ctx, ns.ID, disguise.NewAlias{Name: "Beta"})
	assert.True(t, core.IsValidationError(err))

	_, err = f.svc.ActivateNameSet(ctx, "missing")
	assert.Equal(t, disguise.ErrNameSetNotFound, errors.Cause(err))
}

func TestCreateNameSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.createContext(t, "Maths")

	_, err := f.svc.CreateNameSet(ctx, c.ID, disguise.NewNameSet{Name: "Dup", Aliases: []string{"Alpha", "Alpha"}})
	assert.Contains(t, fieldErrors(t, err), "aliases")

	_, err = f.svc.CreateNameSet(ctx, c.ID, disguise.NewNameSet{Name: " "})
	assert.Equal(t, map[string]string{"name": "this field is required"}, fieldErrors(t, err))

	ns := f.createNameSet(t, c.ID, "Alpha", "Beta")
	require.Len(t, ns.Aliases, 2)
	assert.Equal(t, 0, ns.Aliases[0].Position)
	assert.Equal(t, 1, ns.Aliases[1].Position)

	_, err = f.svc.AddAlias(ctx, ns.ID, disguise.NewAlias{Name: "Beta"})
	assert.Equal(t, map[string]string{"name": disguise.ErrAliasExists.Error()}, fieldErrors(t, err))

	sets, err := f.svc.QueryNameSets(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, ns.ID, sets[0].ID)
}

func TestContexts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	course := f.createContext(t, "Maths")
	module := f.createContext(t, "Algebra", course.ID)
	usr := f.createUser(t, "Real Name", "real")

	_, err := f.svc.CreateContext(ctx, disguise.NewContext{Level: disguise.LevelModule, Name: "Orphan", ParentID: "8a1c3f7e-0000-4000-8000-000000000000"})
	assert.Equal(t, map[string]string{"parent_id": "context not found"}, fieldErrors(t, err))

	ctxs, err := f.svc.QueryContexts(ctx, &disguise.ContextFilter{ParentID: course.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, []disguise.Context{module}, ctxs)

	ctxs, err = f.svc.QueryContexts(ctx, nil, []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password"}})
	require.NoError(t, err)
	assert.Equal(t, []disguise.Context{module, course}, ctxs)

	err = f.svc.DeleteContext(ctx, course.ID)
	assert.Equal(t, disguise.ErrHasChildren, errors.Cause(err).(*core.ValidationError).Err)

	_, err = f.svc.Bind(ctx, module.ID, disguise.VariantBasic)
	require.NoError(t, err)
	ns := f.createNameSet(t, module.ID, "Alpha")
	require.NoError(t, f.svc.SetRevealState(ctx, module.ID, usr.ID, true))

	require.NoError(t, f.svc.DeleteContext(ctx, module.ID))
	_, err = f.svc.GetContext(ctx, module.ID)
	assert.Equal(t, disguise.ErrUnknownContext, errors.Cause(err))
	_, err = f.svc.GetNameSet(ctx, ns.ID)
	assert.Equal(t, disguise.ErrNameSetNotFound, errors.Cause(err))
	revealed, err := f.reveals.RevealState(ctx, module.ID, usr.ID)
	require.NoError(t, err)
	assert.False(t, revealed)

	require.NoError(t, f.svc.DeleteContext(ctx, course.ID))
}

func TestSessionRevealStore(t *testing.T) {
	now := time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC)
	restore := disguise.SetNow(func() time.Time { return now })
	defer restore()

	store := disguise.NewSessionRevealStore(time.Hour)
	f := setup(t, store)
	ctx := context.Background()
	c := f.createContext(t, "Maths")
	usr := f.createUser(t, "Real Name", "real")
	viewer := f.createUser(t, "Viewer", "viewer")

	_, err := f.svc.Bind(ctx, c.ID, disguise.VariantBasic)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, viewer.ID, true))
	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr.ID, viewer.ID))

	now = now.Add(59 * time.Minute)
	assert.Equal(t, "Real Name", f.resolve(t, c.ID, usr.ID, viewer.ID))

	now = now.Add(time.Minute)
	assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr.ID, viewer.ID))

	require.NoError(t, f.svc.SetRevealState(ctx, c.ID, viewer.ID, true))
	require.NoError(t, store.ClearRevealStates(ctx, c.ID))
	assert.Equal(t, "Anonymous", f.resolve(t, c.ID, usr.ID, viewer.ID))
}

func TestNewRevealStore(t *testing.T) {
	conf := core.NewTestConfig()
	persistent := disguise.NewSessionRevealStore(0)

	assert.Same(t, persistent, disguise.NewRevealStore(conf, persistent))

	conf.Disguise.RevealPersistence = core.RevealSession
	_, ok := disguise.NewRevealStore(conf, persistent).(*disguise.SessionRevealStore)
	assert.True(t, ok)
	assert.NotSame(t, persistent, disguise.NewRevealStore(conf, persistent))
}
