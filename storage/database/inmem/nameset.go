package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-disguise/core/disguise"
)

type nameSetRepository struct {
	db *DB
}

var _ disguise.NameSetRepository = (*nameSetRepository)(nil) // interface compliance check

func NewNameSetRepository(db *DB) disguise.NameSetRepository {
	return &nameSetRepository{db: db}
}

func copyNameSet(ns disguise.NameSet) disguise.NameSet {
	ns.Aliases = append(make([]disguise.Alias, 0, len(ns.Aliases)), ns.Aliases...)
	return ns
}

func (repo *nameSetRepository) CreateNameSet(_ context.Context, ns disguise.NameSet) (disguise.NameSet, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.contexts[ns.ContextID]; !ok {
		return disguise.NameSet{}, disguise.ErrUnknownContext
	}
	ns = copyNameSet(ns)
	repo.db.sets[ns.ID] = &ns
	return copyNameSet(ns), nil
}

func (repo *nameSetRepository) GetNameSet(_ context.Context, id string) (disguise.NameSet, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ns, ok := repo.db.sets[id]; ok {
		return copyNameSet(*ns), nil
	}
	return disguise.NameSet{}, disguise.ErrNameSetNotFound
}

func (repo *nameSetRepository) QueryNameSets(_ context.Context, contextID string) ([]disguise.NameSet, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sets := make([]disguise.NameSet, 0)
	for _, ns := range repo.db.sets {
		if ns.ContextID == contextID {
			sets = append(sets, copyNameSet(*ns))
		}
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].CreatedAt.Before(sets[j].CreatedAt) })
	return sets, nil
}

func (repo *nameSetRepository) UpdateNameSetState(_ context.Context, id string, from, to disguise.NameSetState) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ns, ok := repo.db.sets[id]
	if !ok {
		return disguise.ErrNameSetNotFound
	}
	if ns.State != from {
		return disguise.ErrInvalidTransition
	}
	ns.State = to
	ns.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *nameSetRepository) AddAlias(_ context.Context, setID, name string) (disguise.Alias, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ns, ok := repo.db.sets[setID]
	if !ok {
		return disguise.Alias{}, disguise.ErrNameSetNotFound
	}
	pos := 0
	for _, a := range ns.Aliases {
		if a.Name == name {
			return disguise.Alias{}, disguise.ErrAliasExists
		}
		if a.Position >= pos {
			pos = a.Position + 1
		}
	}
	alias := disguise.Alias{
		ID:        uuid.New().String(),
		SetID:     setID,
		Name:      name,
		Available: true,
		Position:  pos,
	}
	ns.Aliases = append(ns.Aliases, alias)
	ns.UpdatedAt = time.Now().UTC()
	return alias, nil
}

func (repo *nameSetRepository) SetAliasAvailability(_ context.Context, setID, aliasID string, available bool) (disguise.Alias, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ns, ok := repo.db.sets[setID]
	if !ok {
		return disguise.Alias{}, disguise.ErrNameSetNotFound
	}
	for i := range ns.Aliases {
		if ns.Aliases[i].ID == aliasID {
			ns.Aliases[i].Available = available
			return ns.Aliases[i], nil
		}
	}
	return disguise.Alias{}, disguise.ErrAliasNotFound
}

func (repo *nameSetRepository) GetAssignment(_ context.Context, setID, userID string) (disguise.Alias, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns, ok := repo.db.sets[setID]
	if !ok {
		return disguise.Alias{}, disguise.ErrNameSetNotFound
	}
	return repo.assignment(ns, userID)
}

// assignment expects the caller to hold the lock.
func (repo *nameSetRepository) assignment(ns *disguise.NameSet, userID string) (disguise.Alias, error) {
	aliasID, ok := repo.db.assigned[assignmentKey{ns.ID, userID}]
	if !ok {
		return disguise.Alias{}, disguise.ErrNotAssigned
	}
	for _, a := range ns.Aliases {
		if a.ID == aliasID {
			return a, nil
		}
	}
	return disguise.Alias{}, disguise.ErrAliasNotFound
}

func (repo *nameSetRepository) AssignAlias(_ context.Context, setID, userID string) (disguise.Alias, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ns, ok := repo.db.sets[setID]
	if !ok {
		return disguise.Alias{}, disguise.ErrNameSetNotFound
	}
	if alias, err := repo.assignment(ns, userID); err != disguise.ErrNotAssigned {
		return alias, err
	}
	if ns.State != disguise.StateActive {
		return disguise.Alias{}, disguise.ErrSetNotActive
	}

	taken := make(map[string]bool)
	for key, aliasID := range repo.db.assigned {
		if key.setID == setID {
			taken[aliasID] = true
		}
	}
	aliases := append([]disguise.Alias(nil), ns.Aliases...)
	sort.SliceStable(aliases, func(i, j int) bool { return aliases[i].Position < aliases[j].Position })
	for _, a := range aliases {
		if a.Available && !taken[a.ID] {
			repo.db.assigned[assignmentKey{setID, userID}] = a.ID
			return a, nil
		}
	}
	return disguise.Alias{}, disguise.ErrPoolExhausted
}
