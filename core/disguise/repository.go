package disguise

import (
	"context"
	"errors"

	"github.com/trezcool/masomo-disguise/core"
)

var (
	// errors
	ErrUnknownContext    = errors.New("context not found")
	ErrNoBinding         = errors.New("no disguise is bound to this context")
	ErrUnconfigured      = errors.New("disguise is not configured")
	ErrUnknownVariant    = errors.New("unknown disguise variant")
	ErrInvalidConfig     = errors.New("invalid disguise configuration")
	ErrNameSetNotFound   = errors.New("name set not found")
	ErrAliasNotFound     = errors.New("alias not found")
	ErrAliasExists       = errors.New("an alias with this name already exists in the set")
	ErrNotAssigned       = errors.New("no alias assigned")
	ErrSetNotActive      = errors.New("name set is not active")
	ErrPoolExhausted     = errors.New("no alias left to assign")
	ErrAssignConflict    = errors.New("alias assignment conflicted with a concurrent request, try again")
	ErrInvalidTransition = errors.New("invalid name set state transition")
	ErrHasChildren       = errors.New("context has child contexts")
)

// Repository persists contexts, bindings and their configuration.
// Writes are last-writer-wins single-row upserts; multi-row writes are atomic.
type Repository interface {
	CreateContext(ctx context.Context, c Context) (Context, error)
	// GetContext returns ErrUnknownContext when id does not resolve.
	GetContext(ctx context.Context, id string) (Context, error)
	QueryContexts(ctx context.Context, filter *ContextFilter, ordering []core.DBOrdering) ([]Context, error)
	// DeleteContext removes the context with its binding, configuration, reveal states and name sets.
	DeleteContext(ctx context.Context, id string) error

	// GetBinding returns ErrNoBinding when the context is not bound.
	GetBinding(ctx context.Context, contextID string) (Binding, error)
	// BindContext upserts the binding and clears the stored configuration.
	BindContext(ctx context.Context, b Binding) (Binding, error)
	// ConfigureBinding replaces the stored configuration and marks the binding configured.
	ConfigureBinding(ctx context.Context, contextID string, cfg Config) (Binding, error)
	// DeleteBinding removes the binding and its configuration.
	DeleteBinding(ctx context.Context, contextID string) error

	GetConfig(ctx context.Context, contextID string) (Config, error)
	SetConfig(ctx context.Context, contextID, key, value string) error
}

// RevealStore keeps the per-viewer reveal overrides. A missing state means hidden.
type RevealStore interface {
	RevealState(ctx context.Context, contextID, viewerID string) (bool, error)
	SetRevealState(ctx context.Context, contextID, viewerID string, reveal bool) error
	ClearRevealStates(ctx context.Context, contextID string) error
}

// NameSetRepository persists predefined name sets and their alias assignments.
type NameSetRepository interface {
	// CreateNameSet inserts the set with its aliases in order.
	CreateNameSet(ctx context.Context, ns NameSet) (NameSet, error)
	GetNameSet(ctx context.Context, id string) (NameSet, error)
	QueryNameSets(ctx context.Context, contextID string) ([]NameSet, error)
	// UpdateNameSetState moves the set from `from` to `to`; ErrInvalidTransition if it is not in `from`.
	UpdateNameSetState(ctx context.Context, id string, from, to NameSetState) error
	// AddAlias appends an alias at the end of the set.
	AddAlias(ctx context.Context, setID, name string) (Alias, error)
	SetAliasAvailability(ctx context.Context, setID, aliasID string, available bool) (Alias, error)
	// GetAssignment returns ErrNotAssigned when userID holds no alias in the set.
	GetAssignment(ctx context.Context, setID, userID string) (Alias, error)
	// AssignAlias returns the alias held by userID, assigning the first available and unassigned
	// alias (by position) when there is none. New assignments require an active set.
	// ErrAssignConflict when concurrent assignments kept winning the race.
	AssignAlias(ctx context.Context, setID, userID string) (Alias, error)
}
