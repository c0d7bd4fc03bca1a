package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
)

type (
	// DB holds in-process tables guarded by a single RWMutex so that multi-table writes stay atomic.
	DB struct {
		sync.RWMutex

		users    map[string]*user.User
		contexts map[string]*disguise.Context
		bindings map[string]*disguise.Binding // by context id
		configs  map[string]disguise.Config   // by context id
		reveals  map[revealKey]bool           // (context id, viewer id)
		sets     map[string]*disguise.NameSet // by set id
		assigned map[assignmentKey]string     // (set id, user id) -> alias id
	}

	revealKey struct {
		contextID string
		viewerID  string
	}

	assignmentKey struct {
		setID  string
		userID string
	}
)

func Open() *DB {
	return &DB{
		users:    make(map[string]*user.User),
		contexts: make(map[string]*disguise.Context),
		bindings: make(map[string]*disguise.Binding),
		configs:  make(map[string]disguise.Config),
		reveals:  make(map[revealKey]bool),
		sets:     make(map[string]*disguise.NameSet),
		assigned: make(map[assignmentKey]string),
	}
}
