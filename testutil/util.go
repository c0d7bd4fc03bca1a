package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
	"github.com/trezcool/masomo-disguise/storage/database"
)

// OpenDB opens a fresh, migrated in-memory SQLite database that is closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = ":memory:"

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db, conf); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateContext inserts a Context directly through the repository.
func CreateContext(t *testing.T, repo disguise.Repository, level, name string, parentID ...string) disguise.Context {
	t.Helper()

	c := disguise.Context{
		ID:        uuid.New().String(),
		Level:     level,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if len(parentID) > 0 {
		c.ParentID = parentID[0]
	}
	c, err := repo.CreateContext(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateContext() failed: %v", err)
	}
	return c
}
