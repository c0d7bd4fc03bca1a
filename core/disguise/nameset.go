package disguise

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-disguise/core"
)

type NameSetState string

// Name set states: draft -> active -> retired
const (
	StateDraft   NameSetState = "draft"
	StateActive  NameSetState = "active"
	StateRetired NameSetState = "retired"
)

var nameSetTransitions = map[NameSetState]NameSetState{
	StateDraft:  StateActive,
	StateActive: StateRetired,
}

// CanTransitionTo reports whether a set in state s may move to `to`.
func (s NameSetState) CanTransitionTo(to NameSetState) bool {
	next, ok := nameSetTransitions[s]
	return ok && next == to
}

// AcceptsAliases reports whether aliases may still be added to a set in state s.
func (s NameSetState) AcceptsAliases() bool {
	return s == StateDraft || s == StateActive
}

// NameSet is an ordered pool of aliases owned by the predefined variant.
type NameSet struct {
	ID        string       `json:"id"`
	ContextID string       `json:"context_id"`
	Name      string       `json:"name"`
	State     NameSetState `json:"state"`
	Aliases   []Alias      `json:"aliases"`
	CreatedAt time.Time    `json:"created_at"` // UTC
	UpdatedAt time.Time    `json:"updated_at"` // UTC
}

// Alias is a name that can be handed out to one user within a set.
type Alias struct {
	ID        string `json:"id"`
	SetID     string `json:"set_id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Position  int    `json:"position"`
}

// NewNameSet contains information needed to create a NameSet.
type NewNameSet struct {
	Name    string   `json:"name" validate:"required,max=255"`
	Aliases []string `json:"aliases" validate:"omitempty,unique,dive,aliasname"`
}

func (nns *NewNameSet) Validate(validate *validator.Validate) error {
	nns.Name = core.CleanString(nns.Name)
	for i := range nns.Aliases {
		nns.Aliases[i] = core.CleanString(nns.Aliases[i])
	}
	return validate.Struct(nns)
}

// NewAlias contains information needed to append an Alias to a NameSet.
type NewAlias struct {
	Name string `json:"name" validate:"aliasname"`
}

func (na *NewAlias) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	return validate.Struct(na)
}

// AliasAvailability toggles whether an Alias may be newly assigned.
type AliasAvailability struct {
	Available *bool `json:"available" validate:"required"`
}
