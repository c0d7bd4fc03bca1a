package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/user"
)

func (f fixture) fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	translated := core.TranslateValidationErrors(err, f.translator)
	vErr, ok := errors.Cause(translated).(*core.ValidationError)
	require.Truef(t, ok, "want *core.ValidationError, got %T (%v)", err, err)
	return vErr.FieldMap()
}

func TestNewUser_Validate(t *testing.T) {
	f := setup(t)
	svc, validate := f.svc, f.validate
	ctx := context.Background()
	_, err := svc.Create(ctx, user.NewUser{Name: "Taken", Username: "taken", Email: "taken@test.cd", Password: "Sup3r$ecretP@ss"})
	require.NoError(t, err)

	newUser := func(name, uname, email, pwd string, roles ...string) user.NewUser {
		return user.NewUser{Name: name, Username: uname, Email: email, Password: pwd, PasswordConfirm: pwd, Roles: roles}
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantMsg   string
	}{
		{name: "valid", nu: newUser("Hero", " HERO ", "Hero@Test.cd", "Sup3r$ecretP@ss", user.RoleStudent)},
		{name: "no username or email", nu: newUser("Hero", "", "", "Sup3r$ecretP@ss"), wantField: "username", wantMsg: "one of username or email is required"},
		{name: "bad username", nu: newUser("Hero", "he-ro", "", "Sup3r$ecretP@ss"), wantField: "username", wantMsg: "only alphanumeric characters and underscores are allowed"},
		{name: "unknown role", nu: newUser("Hero", "hero", "", "Sup3r$ecretP@ss", "root"), wantField: "roles", wantMsg: "invalid roles"},
		{name: "short password", nu: newUser("Hero", "hero", "", "Ab1!"), wantField: "password", wantMsg: "password must contain at least 8 characters"},
		{name: "whitespace", nu: newUser("Hero", "hero", "", "Abcd 123!"), wantField: "password", wantMsg: "password must not contain whitespace"},
		{name: "numeric", nu: newUser("Hero", "hero", "", "12345678"), wantField: "password", wantMsg: "password cannot be entirely numeric"},
		{
			name: "too simple", nu: newUser("Hero", "hero", "", "abcdefgh1"), wantField: "password",
			wantMsg: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		},
		{name: "similar to name", nu: newUser("Kinshasa", "hero", "", "Kinshasa1!"), wantField: "password", wantMsg: "password cannot be similar to user attributes"},
		{name: "confirmation mismatch", nu: user.NewUser{Name: "Hero", Username: "hero", Password: "Sup3r$ecretP@ss", PasswordConfirm: "nope"}, wantField: "password_confirm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := tt.nu
			err := nu.Validate(ctx, validate, svc)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			flds := f.fieldErrors(t, err)
			if assert.Contains(t, flds, tt.wantField) && tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, flds[tt.wantField])
			}
		})
	}

	// cleaned before validation
	nu := newUser(" Hero ", " HERO ", " Hero@Test.cd ", "Sup3r$ecretP@ss")
	require.NoError(t, nu.Validate(ctx, validate, svc))
	assert.Equal(t, "Hero", nu.Name)
	assert.Equal(t, "hero", nu.Username)
	assert.Equal(t, "hero@test.cd", nu.Email)

	// uniqueness
	nu = newUser("Other", "TAKEN", "", "Sup3r$ecretP@ss")
	assert.Equal(t, map[string]string{"username": user.ErrUsernameExists.Error()}, f.fieldErrors(t, nu.Validate(ctx, validate, svc)))
	nu = newUser("Other", "other", "taken@test.cd", "Sup3r$ecretP@ss")
	assert.Equal(t, map[string]string{"email": user.ErrEmailExists.Error()}, f.fieldErrors(t, nu.Validate(ctx, validate, svc)))
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, user.MaxRolePriority(nil))
	assert.Equal(t, 11, user.MaxRolePriority([]string{user.RoleStudent, user.RoleTeacher}))
	assert.Equal(t, 30, user.MaxRolePriority(user.AllRoles))
}
