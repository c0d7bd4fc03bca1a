package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-disguise/core/disguise"
)

// maxAssignAttempts bounds the retries of AssignAlias when concurrent requests race for the same alias.
const maxAssignAttempts = 5

type (
	nameSetRow struct {
		ID        string    `db:"id"`
		ContextID string    `db:"context_id"`
		Name      string    `db:"name"`
		State     string    `db:"state"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	aliasRow struct {
		ID        string `db:"id"`
		SetID     string `db:"set_id"`
		Name      string `db:"name"`
		Available bool   `db:"available"`
		Position  int    `db:"position"`
	}
)

func (row nameSetRow) nameSet(aliases []aliasRow) disguise.NameSet {
	ns := disguise.NameSet{
		ID:        row.ID,
		ContextID: row.ContextID,
		Name:      row.Name,
		State:     disguise.NameSetState(row.State),
		Aliases:   make([]disguise.Alias, 0, len(aliases)),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	for _, a := range aliases {
		ns.Aliases = append(ns.Aliases, a.alias())
	}
	return ns
}

func (row aliasRow) alias() disguise.Alias {
	return disguise.Alias{
		ID:        row.ID,
		SetID:     row.SetID,
		Name:      row.Name,
		Available: row.Available,
		Position:  row.Position,
	}
}

type nameSetRepository struct {
	db *sqlx.DB
}

var _ disguise.NameSetRepository = (*nameSetRepository)(nil) // interface compliance check

func NewNameSetRepository(db *sqlx.DB) disguise.NameSetRepository {
	return &nameSetRepository{db: db}
}

const (
	nameSetColumns = "id, context_id, name, state, created_at, updated_at"
	aliasColumns   = "id, set_id, name, available, position"
)

func (repo *nameSetRepository) CreateNameSet(ctx context.Context, ns disguise.NameSet) (disguise.NameSet, error) {
	var created disguise.NameSet
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := exec(ctx, tx,
			"INSERT INTO disguise_namesets ("+nameSetColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			ns.ID, ns.ContextID, ns.Name, string(ns.State), ns.CreatedAt.UTC(), ns.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting name set")
		}
		for _, a := range ns.Aliases {
			_, err = exec(ctx, tx,
				"INSERT INTO disguise_aliases ("+aliasColumns+") VALUES (?, ?, ?, ?, ?)",
				a.ID, ns.ID, a.Name, a.Available, a.Position)
			if err != nil {
				if isUniqueViolation(err) {
					return disguise.ErrAliasExists
				}
				return errors.Wrap(err, "inserting alias")
			}
		}
		created, err = repo.getNameSet(ctx, tx, ns.ID)
		return err
	})
	return created, err
}

func (repo *nameSetRepository) getNameSet(ctx context.Context, q sqlx.ExtContext, id string) (disguise.NameSet, error) {
	var row nameSetRow
	if err := get(ctx, q, &row, "SELECT "+nameSetColumns+" FROM disguise_namesets WHERE id = ?", id); err != nil {
		if isNoRows(err) {
			return disguise.NameSet{}, disguise.ErrNameSetNotFound
		}
		return disguise.NameSet{}, errors.Wrap(err, "getting name set")
	}
	var aliases []aliasRow
	err := query(ctx, q, &aliases,
		"SELECT "+aliasColumns+" FROM disguise_aliases WHERE set_id = ? ORDER BY position ASC", id)
	if err != nil {
		return disguise.NameSet{}, errors.Wrap(err, "getting aliases")
	}
	return row.nameSet(aliases), nil
}

func (repo *nameSetRepository) GetNameSet(ctx context.Context, id string) (disguise.NameSet, error) {
	return repo.getNameSet(ctx, repo.db, id)
}

func (repo *nameSetRepository) QueryNameSets(ctx context.Context, contextID string) ([]disguise.NameSet, error) {
	var rows []nameSetRow
	err := query(ctx, repo.db, &rows,
		"SELECT "+nameSetColumns+" FROM disguise_namesets WHERE context_id = ? ORDER BY created_at ASC, id ASC",
		contextID)
	if err != nil {
		return nil, errors.Wrap(err, "querying name sets")
	}
	if len(rows) == 0 {
		return []disguise.NameSet{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	q, args, err := in(repo.db,
		"SELECT "+aliasColumns+" FROM disguise_aliases WHERE set_id IN (?) ORDER BY position ASC", ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying aliases")
	}
	var aliases []aliasRow
	if err = sqlx.SelectContext(ctx, repo.db, &aliases, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying aliases")
	}
	bySet := make(map[string][]aliasRow, len(rows))
	for _, a := range aliases {
		bySet[a.SetID] = append(bySet[a.SetID], a)
	}

	sets := make([]disguise.NameSet, 0, len(rows))
	for _, row := range rows {
		sets = append(sets, row.nameSet(bySet[row.ID]))
	}
	return sets, nil
}

func (repo *nameSetRepository) UpdateNameSetState(ctx context.Context, id string, from, to disguise.NameSetState) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := exec(ctx, tx,
			"UPDATE disguise_namesets SET state = ?, updated_at = ? WHERE id = ? AND state = ?",
			string(to), time.Now().UTC(), id, string(from))
		if err != nil {
			return errors.Wrap(err, "updating name set state")
		}
		if n > 0 {
			return nil
		}
		if _, err = repo.getNameSet(ctx, tx, id); err != nil {
			return err
		}
		return disguise.ErrInvalidTransition
	})
}

func (repo *nameSetRepository) AddAlias(ctx context.Context, setID, name string) (disguise.Alias, error) {
	var alias disguise.Alias
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		ns, err := repo.getNameSet(ctx, tx, setID)
		if err != nil {
			return err
		}
		pos := 0
		for _, a := range ns.Aliases {
			if a.Name == name {
				return disguise.ErrAliasExists
			}
			if a.Position >= pos {
				pos = a.Position + 1
			}
		}

		alias = disguise.Alias{ID: uuid.New().String(), SetID: setID, Name: name, Available: true, Position: pos}
		_, err = exec(ctx, tx,
			"INSERT INTO disguise_aliases ("+aliasColumns+") VALUES (?, ?, ?, ?, ?)",
			alias.ID, alias.SetID, alias.Name, alias.Available, alias.Position)
		if err != nil {
			if isUniqueViolation(err) {
				return disguise.ErrAliasExists
			}
			return errors.Wrap(err, "inserting alias")
		}
		_, err = exec(ctx, tx, "UPDATE disguise_namesets SET updated_at = ? WHERE id = ?", time.Now().UTC(), setID)
		return errors.Wrap(err, "updating name set")
	})
	return alias, err
}

func (repo *nameSetRepository) SetAliasAvailability(ctx context.Context, setID, aliasID string, available bool) (disguise.Alias, error) {
	var alias disguise.Alias
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := exec(ctx, tx,
			"UPDATE disguise_aliases SET available = ? WHERE id = ? AND set_id = ?", available, aliasID, setID)
		if err != nil {
			return errors.Wrap(err, "updating alias")
		}
		if n == 0 {
			if _, err = repo.getNameSet(ctx, tx, setID); err != nil {
				return err
			}
			return disguise.ErrAliasNotFound
		}
		var row aliasRow
		if err = get(ctx, tx, &row, "SELECT "+aliasColumns+" FROM disguise_aliases WHERE id = ?", aliasID); err != nil {
			return errors.Wrap(err, "getting alias")
		}
		alias = row.alias()
		return nil
	})
	return alias, err
}

func (repo *nameSetRepository) getAssignment(ctx context.Context, q sqlx.ExtContext, setID, userID string) (disguise.Alias, error) {
	var row aliasRow
	err := get(ctx, q, &row,
		"SELECT a.id, a.set_id, a.name, a.available, a.position FROM disguise_assignments s "+
			"JOIN disguise_aliases a ON a.id = s.alias_id WHERE s.set_id = ? AND s.user_id = ?",
		setID, userID)
	if err != nil {
		if isNoRows(err) {
			return disguise.Alias{}, disguise.ErrNotAssigned
		}
		return disguise.Alias{}, errors.Wrap(err, "getting assignment")
	}
	return row.alias(), nil
}

func (repo *nameSetRepository) GetAssignment(ctx context.Context, setID, userID string) (disguise.Alias, error) {
	alias, err := repo.getAssignment(ctx, repo.db, setID, userID)
	if errors.Cause(err) == disguise.ErrNotAssigned {
		if _, err := repo.GetNameSet(ctx, setID); err != nil {
			return disguise.Alias{}, err
		}
	}
	return alias, err
}

func (repo *nameSetRepository) AssignAlias(ctx context.Context, setID, userID string) (disguise.Alias, error) {
	for attempt := 1; ; attempt++ {
		alias, err := repo.assignAlias(ctx, setID, userID)
		if err != errConflict {
			return alias, err
		}
		if attempt == maxAssignAttempts {
			return disguise.Alias{}, disguise.ErrAssignConflict
		}
	}
}

var errConflict = errors.New("assignment conflict")

// assignAlias returns errConflict when a concurrent request took the alias or assigned the user first.
func (repo *nameSetRepository) assignAlias(ctx context.Context, setID, userID string) (disguise.Alias, error) {
	var alias disguise.Alias
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		alias, err = repo.getAssignment(ctx, tx, setID, userID)
		if errors.Cause(err) != disguise.ErrNotAssigned {
			return err
		}

		var state string
		if err = get(ctx, tx, &state, "SELECT state FROM disguise_namesets WHERE id = ?", setID); err != nil {
			if isNoRows(err) {
				return disguise.ErrNameSetNotFound
			}
			return errors.Wrap(err, "getting name set state")
		}
		if disguise.NameSetState(state) != disguise.StateActive {
			return disguise.ErrSetNotActive
		}

		var row aliasRow
		err = get(ctx, tx, &row,
			"SELECT "+aliasColumns+" FROM disguise_aliases a WHERE a.set_id = ? AND a.available = ? "+
				"AND NOT EXISTS (SELECT 1 FROM disguise_assignments s WHERE s.alias_id = a.id) "+
				"ORDER BY a.position ASC LIMIT 1",
			setID, true)
		if err != nil {
			if isNoRows(err) {
				return disguise.ErrPoolExhausted
			}
			return errors.Wrap(err, "picking alias")
		}

		n, err := exec(ctx, tx,
			"INSERT INTO disguise_assignments (set_id, user_id, alias_id, assigned_at) VALUES (?, ?, ?, ?) "+
				"ON CONFLICT DO NOTHING",
			setID, userID, row.ID, time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "inserting assignment")
		}
		if n == 0 {
			return errConflict
		}
		alias = row.alias()
		return nil
	})
	return alias, err
}
