package disguise

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core"
)

// CreateNameSet creates a draft NameSet in the context. Validation errors are returned translated.
func (svc *Service) CreateNameSet(ctx context.Context, contextID string, nns NewNameSet) (NameSet, error) {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return NameSet{}, err
	}
	if err := nns.Validate(svc.validate); err != nil {
		return NameSet{}, core.TranslateValidationErrors(err, svc.translator)
	}

	now := time.Now().UTC()
	ns := NameSet{
		ID:        uuid.New().String(),
		ContextID: contextID,
		Name:      nns.Name,
		State:     StateDraft,
		Aliases:   make([]Alias, 0, len(nns.Aliases)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, name := range nns.Aliases {
		ns.Aliases = append(ns.Aliases, Alias{
			ID:        uuid.New().String(),
			SetID:     ns.ID,
			Name:      name,
			Available: true,
			Position:  i,
		})
	}
	return svc.sets.CreateNameSet(ctx, ns)
}

func (svc *Service) GetNameSet(ctx context.Context, setID string) (NameSet, error) {
	return svc.sets.GetNameSet(ctx, core.CleanString(setID, true /* lower */))
}

func (svc *Service) QueryNameSets(ctx context.Context, contextID string) ([]NameSet, error) {
	if _, err := svc.repo.GetContext(ctx, contextID); err != nil {
		return nil, err
	}
	return svc.sets.QueryNameSets(ctx, contextID)
}

// AddAlias appends an alias to a draft or active set.
func (svc *Service) AddAlias(ctx context.Context, setID string, na NewAlias) (Alias, error) {
	ns, err := svc.GetNameSet(ctx, setID)
	if err != nil {
		return Alias{}, err
	}
	if !ns.State.AcceptsAliases() {
		return Alias{}, core.NewValidationError(ErrSetNotActive, core.FieldError{Field: "state", Error: "name set is retired"})
	}
	if err = na.Validate(svc.validate); err != nil {
		return Alias{}, core.TranslateValidationErrors(err, svc.translator)
	}
	alias, err := svc.sets.AddAlias(ctx, ns.ID, na.Name)
	if err != nil {
		if errors.Cause(err) == ErrAliasExists {
			return Alias{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return Alias{}, err
	}
	return alias, nil
}

// SetAliasAvailability marks an alias (un)available for new assignments. Existing assignments are kept.
func (svc *Service) SetAliasAvailability(ctx context.Context, setID, aliasID string, available bool) (Alias, error) {
	ns, err := svc.GetNameSet(ctx, setID)
	if err != nil {
		return Alias{}, err
	}
	return svc.sets.SetAliasAvailability(ctx, ns.ID, aliasID, available)
}

func (svc *Service) ActivateNameSet(ctx context.Context, setID string) (NameSet, error) {
	return svc.transitionNameSet(ctx, setID, StateActive)
}

// RetireNameSet stops new assignments from the set. Assigned aliases stay with their users.
func (svc *Service) RetireNameSet(ctx context.Context, setID string) (NameSet, error) {
	return svc.transitionNameSet(ctx, setID, StateRetired)
}

func (svc *Service) transitionNameSet(ctx context.Context, setID string, to NameSetState) (NameSet, error) {
	ns, err := svc.GetNameSet(ctx, setID)
	if err != nil {
		return NameSet{}, err
	}
	if !ns.State.CanTransitionTo(to) {
		return NameSet{}, core.NewValidationError(ErrInvalidTransition, core.FieldError{
			Field: "state",
			Error: fmt.Sprintf("cannot move from %s to %s", ns.State, to),
		})
	}
	if err = svc.sets.UpdateNameSetState(ctx, ns.ID, ns.State, to); err != nil {
		if errors.Cause(err) == ErrInvalidTransition {
			return NameSet{}, core.NewValidationError(err)
		}
		return NameSet{}, errors.Wrap(err, "updating name set state")
	}
	svc.logger.Info(fmt.Sprintf("name set %s of context %s is now %s", ns.ID, ns.ContextID, to))
	return svc.sets.GetNameSet(ctx, ns.ID)
}

// AliasOf returns the alias userID holds in the set, if any.
func (svc *Service) AliasOf(ctx context.Context, setID, userID string) (Alias, error) {
	ns, err := svc.GetNameSet(ctx, setID)
	if err != nil {
		return Alias{}, err
	}
	return svc.sets.GetAssignment(ctx, ns.ID, userID)
}
