package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
)

// DisguiseRepository stores contexts, bindings, configuration and reveal states.
type DisguiseRepository struct {
	db *DB
}

var (
	_ disguise.Repository  = (*DisguiseRepository)(nil) // interface compliance check
	_ disguise.RevealStore = (*DisguiseRepository)(nil) // interface compliance check
)

func NewDisguiseRepository(db *DB) *DisguiseRepository {
	return &DisguiseRepository{db: db}
}

func (repo *DisguiseRepository) CreateContext(_ context.Context, c disguise.Context) (disguise.Context, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.contexts[c.ID] = &c
	return c, nil
}

func (repo *DisguiseRepository) GetContext(_ context.Context, id string) (disguise.Context, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.contexts[id]; ok {
		return *c, nil
	}
	return disguise.Context{}, disguise.ErrUnknownContext
}

func (repo *DisguiseRepository) QueryContexts(_ context.Context, filter *disguise.ContextFilter, ordering []core.DBOrdering) ([]disguise.Context, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ctxs := make([]disguise.Context, 0, len(repo.db.contexts))
	for _, c := range repo.db.contexts {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Level != "" && c.Level != filter.Level {
				continue
			}
			if filter.ParentID != "" && c.ParentID != filter.ParentID {
				continue
			}
		}
		ctxs = append(ctxs, *c)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(ctxs, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareContexts(ctxs[i], ctxs[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return ctxs[i].ID < ctxs[j].ID
	})
	return ctxs, nil
}

func compareContexts(a, b disguise.Context, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "level":
		return strings.Compare(a.Level, b.Level)
	case "created_at":
		switch {
		case a.CreatedAt.Before(b.CreatedAt):
			return -1
		case a.CreatedAt.After(b.CreatedAt):
			return 1
		}
	}
	return 0
}

func (repo *DisguiseRepository) DeleteContext(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.contexts[id]; !ok {
		return disguise.ErrUnknownContext
	}
	delete(repo.db.contexts, id)
	delete(repo.db.bindings, id)
	delete(repo.db.configs, id)
	repo.clearReveals(id)
	for setID, ns := range repo.db.sets {
		if ns.ContextID != id {
			continue
		}
		delete(repo.db.sets, setID)
		for key := range repo.db.assigned {
			if key.setID == setID {
				delete(repo.db.assigned, key)
			}
		}
	}
	return nil
}

func (repo *DisguiseRepository) GetBinding(_ context.Context, contextID string) (disguise.Binding, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.bindings[contextID]; ok {
		return *b, nil
	}
	return disguise.Binding{}, disguise.ErrNoBinding
}

func (repo *DisguiseRepository) BindContext(_ context.Context, b disguise.Binding) (disguise.Binding, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.contexts[b.ContextID]; !ok {
		return disguise.Binding{}, disguise.ErrUnknownContext
	}
	if existing, ok := repo.db.bindings[b.ContextID]; ok {
		b.CreatedAt = existing.CreatedAt
	}
	repo.db.bindings[b.ContextID] = &b
	delete(repo.db.configs, b.ContextID)
	return b, nil
}

func (repo *DisguiseRepository) ConfigureBinding(_ context.Context, contextID string, cfg disguise.Config) (disguise.Binding, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.bindings[contextID]
	if !ok {
		return disguise.Binding{}, disguise.ErrNoBinding
	}
	repo.db.configs[contextID] = disguise.Config{}.Merge(cfg)
	b.Configured = true
	b.UpdatedAt = time.Now().UTC()
	return *b, nil
}

func (repo *DisguiseRepository) DeleteBinding(_ context.Context, contextID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.bindings[contextID]; !ok {
		return disguise.ErrNoBinding
	}
	delete(repo.db.bindings, contextID)
	delete(repo.db.configs, contextID)
	return nil
}

func (repo *DisguiseRepository) GetConfig(_ context.Context, contextID string) (disguise.Config, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return disguise.Config{}.Merge(repo.db.configs[contextID]), nil
}

func (repo *DisguiseRepository) SetConfig(_ context.Context, contextID, key, value string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.contexts[contextID]; !ok {
		return disguise.ErrUnknownContext
	}
	cfg, ok := repo.db.configs[contextID]
	if !ok {
		cfg = disguise.Config{}
		repo.db.configs[contextID] = cfg
	}
	cfg[key] = value
	return nil
}

func (repo *DisguiseRepository) RevealState(_ context.Context, contextID, viewerID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	return repo.db.reveals[revealKey{contextID, viewerID}], nil
}

func (repo *DisguiseRepository) SetRevealState(_ context.Context, contextID, viewerID string, reveal bool) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.reveals[revealKey{contextID, viewerID}] = reveal
	return nil
}

func (repo *DisguiseRepository) ClearRevealStates(_ context.Context, contextID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.clearReveals(contextID)
	return nil
}

// clearReveals expects the caller to hold the write lock.
func (repo *DisguiseRepository) clearReveals(contextID string) {
	for key := range repo.db.reveals {
		if key.contextID == contextID {
			delete(repo.db.reveals, key)
		}
	}
}
