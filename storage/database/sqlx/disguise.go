package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
)

type (
	contextRow struct {
		ID        string      `db:"id"`
		Level     string      `db:"level"`
		Name      string      `db:"name"`
		ParentID  null.String `db:"parent_id"`
		CreatedAt time.Time   `db:"created_at"`
	}

	bindingRow struct {
		ContextID  string    `db:"context_id"`
		Variant    string    `db:"variant"`
		Configured bool      `db:"configured"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	configRow struct {
		Setting string `db:"setting"`
		Value   string `db:"value"`
	}
)

func (row contextRow) context() disguise.Context {
	return disguise.Context{
		ID:        row.ID,
		Level:     row.Level,
		Name:      row.Name,
		ParentID:  row.ParentID.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func (row bindingRow) binding() disguise.Binding {
	return disguise.Binding{
		ContextID:  row.ContextID,
		Variant:    row.Variant,
		Configured: row.Configured,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

var contextOrderings = map[string]string{
	"name":       "name",
	"level":      "level",
	"created_at": "created_at",
}

// DisguiseRepository stores contexts, bindings, configuration and reveal states.
type DisguiseRepository struct {
	db *sqlx.DB
}

var (
	_ disguise.Repository  = (*DisguiseRepository)(nil) // interface compliance check
	_ disguise.RevealStore = (*DisguiseRepository)(nil) // interface compliance check
)

func NewDisguiseRepository(db *sqlx.DB) *DisguiseRepository {
	return &DisguiseRepository{db: db}
}

func (repo *DisguiseRepository) CreateContext(ctx context.Context, c disguise.Context) (disguise.Context, error) {
	_, err := exec(ctx, repo.db,
		"INSERT INTO contexts (id, level, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.Level, c.Name, null.NewString(c.ParentID, c.ParentID != ""), c.CreatedAt.UTC())
	if err != nil {
		return disguise.Context{}, errors.Wrap(err, "inserting context")
	}
	return c, nil
}

func (repo *DisguiseRepository) GetContext(ctx context.Context, id string) (disguise.Context, error) {
	var row contextRow
	err := get(ctx, repo.db, &row, "SELECT id, level, name, parent_id, created_at FROM contexts WHERE id = ?", id)
	if err != nil {
		if isNoRows(err) {
			return disguise.Context{}, disguise.ErrUnknownContext
		}
		return disguise.Context{}, errors.Wrap(err, "getting context")
	}
	return row.context(), nil
}

func (repo *DisguiseRepository) QueryContexts(ctx context.Context, filter *disguise.ContextFilter, ordering []core.DBOrdering) ([]disguise.Context, error) {
	q := "SELECT id, level, name, parent_id, created_at FROM contexts"
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			where = append(where, "name "+likeOperator(repo.db)+" ?")
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Level != "" {
			where = append(where, "level = ?")
			args = append(args, filter.Level)
		}
		if filter.ParentID != "" {
			where = append(where, "parent_id = ?")
			args = append(args, filter.ParentID)
		}
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := contextOrderings[ord.Field]; ok {
			orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "created_at ASC")
	}
	q += " ORDER BY " + strings.Join(append(orderBy, "id ASC"), ", ")

	var rows []contextRow
	if err := query(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying contexts")
	}
	ctxs := make([]disguise.Context, 0, len(rows))
	for _, row := range rows {
		ctxs = append(ctxs, row.context())
	}
	return ctxs, nil
}

// DeleteContext deletes dependent rows explicitly so it does not rely on foreign key enforcement.
func (repo *DisguiseRepository) DeleteContext(ctx context.Context, id string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmts := []string{
			"DELETE FROM disguise_assignments WHERE set_id IN (SELECT id FROM disguise_namesets WHERE context_id = ?)",
			"DELETE FROM disguise_aliases WHERE set_id IN (SELECT id FROM disguise_namesets WHERE context_id = ?)",
			"DELETE FROM disguise_namesets WHERE context_id = ?",
			"DELETE FROM disguise_reveal_states WHERE context_id = ?",
			"DELETE FROM disguise_config WHERE context_id = ?",
			"DELETE FROM disguise_bindings WHERE context_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := exec(ctx, tx, stmt, id); err != nil {
				return errors.Wrap(err, "deleting context dependencies")
			}
		}
		n, err := exec(ctx, tx, "DELETE FROM contexts WHERE id = ?", id)
		if err != nil {
			return errors.Wrap(err, "deleting context")
		}
		if n == 0 {
			return disguise.ErrUnknownContext
		}
		return nil
	})
}

func (repo *DisguiseRepository) getBinding(ctx context.Context, q sqlx.ExtContext, contextID string) (disguise.Binding, error) {
	var row bindingRow
	err := get(ctx, q, &row,
		"SELECT context_id, variant, configured, created_at, updated_at FROM disguise_bindings WHERE context_id = ?",
		contextID)
	if err != nil {
		if isNoRows(err) {
			return disguise.Binding{}, disguise.ErrNoBinding
		}
		return disguise.Binding{}, errors.Wrap(err, "getting binding")
	}
	return row.binding(), nil
}

func (repo *DisguiseRepository) GetBinding(ctx context.Context, contextID string) (disguise.Binding, error) {
	return repo.getBinding(ctx, repo.db, contextID)
}

func (repo *DisguiseRepository) BindContext(ctx context.Context, b disguise.Binding) (disguise.Binding, error) {
	var bound disguise.Binding
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := exec(ctx, tx,
			"INSERT INTO disguise_bindings (context_id, variant, configured, created_at, updated_at) VALUES (?, ?, ?, ?, ?) "+
				"ON CONFLICT (context_id) DO UPDATE SET "+
				"variant = excluded.variant, configured = excluded.configured, updated_at = excluded.updated_at",
			b.ContextID, b.Variant, b.Configured, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "upserting binding")
		}
		if _, err = exec(ctx, tx, "DELETE FROM disguise_config WHERE context_id = ?", b.ContextID); err != nil {
			return errors.Wrap(err, "clearing config")
		}
		bound, err = repo.getBinding(ctx, tx, b.ContextID)
		return err
	})
	return bound, err
}

func (repo *DisguiseRepository) ConfigureBinding(ctx context.Context, contextID string, cfg disguise.Config) (disguise.Binding, error) {
	var configured disguise.Binding
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := exec(ctx, tx,
			"UPDATE disguise_bindings SET configured = ?, updated_at = ? WHERE context_id = ?",
			true, time.Now().UTC(), contextID)
		if err != nil {
			return errors.Wrap(err, "updating binding")
		}
		if n == 0 {
			return disguise.ErrNoBinding
		}
		if _, err = exec(ctx, tx, "DELETE FROM disguise_config WHERE context_id = ?", contextID); err != nil {
			return errors.Wrap(err, "clearing config")
		}
		for _, key := range cfg.Keys() {
			if err = repo.setConfig(ctx, tx, contextID, key, cfg[key]); err != nil {
				return err
			}
		}
		configured, err = repo.getBinding(ctx, tx, contextID)
		return err
	})
	return configured, err
}

func (repo *DisguiseRepository) DeleteBinding(ctx context.Context, contextID string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := exec(ctx, tx, "DELETE FROM disguise_config WHERE context_id = ?", contextID); err != nil {
			return errors.Wrap(err, "clearing config")
		}
		n, err := exec(ctx, tx, "DELETE FROM disguise_bindings WHERE context_id = ?", contextID)
		if err != nil {
			return errors.Wrap(err, "deleting binding")
		}
		if n == 0 {
			return disguise.ErrNoBinding
		}
		return nil
	})
}

func (repo *DisguiseRepository) GetConfig(ctx context.Context, contextID string) (disguise.Config, error) {
	var rows []configRow
	if err := query(ctx, repo.db, &rows, "SELECT setting, value FROM disguise_config WHERE context_id = ?", contextID); err != nil {
		return nil, errors.Wrap(err, "getting config")
	}
	cfg := make(disguise.Config, len(rows))
	for _, row := range rows {
		cfg[row.Setting] = row.Value
	}
	return cfg, nil
}

func (repo *DisguiseRepository) setConfig(ctx context.Context, q sqlx.ExtContext, contextID, key, value string) error {
	_, err := exec(ctx, q,
		"INSERT INTO disguise_config (context_id, setting, value) VALUES (?, ?, ?) "+
			"ON CONFLICT (context_id, setting) DO UPDATE SET value = excluded.value",
		contextID, key, value)
	return errors.Wrap(err, "upserting config")
}

func (repo *DisguiseRepository) SetConfig(ctx context.Context, contextID, key, value string) error {
	return repo.setConfig(ctx, repo.db, contextID, key, value)
}

func (repo *DisguiseRepository) RevealState(ctx context.Context, contextID, viewerID string) (bool, error) {
	var revealed bool
	err := get(ctx, repo.db, &revealed,
		"SELECT revealed FROM disguise_reveal_states WHERE context_id = ? AND viewer_id = ?",
		contextID, viewerID)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "getting reveal state")
	}
	return revealed, nil
}

func (repo *DisguiseRepository) SetRevealState(ctx context.Context, contextID, viewerID string, reveal bool) error {
	_, err := exec(ctx, repo.db,
		"INSERT INTO disguise_reveal_states (context_id, viewer_id, revealed, updated_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (context_id, viewer_id) DO UPDATE SET revealed = excluded.revealed, updated_at = excluded.updated_at",
		contextID, viewerID, reveal, time.Now().UTC())
	return errors.Wrap(err, "upserting reveal state")
}

func (repo *DisguiseRepository) ClearRevealStates(ctx context.Context, contextID string) error {
	_, err := exec(ctx, repo.db, "DELETE FROM disguise_reveal_states WHERE context_id = ?", contextID)
	return errors.Wrap(err, "clearing reveal states")
}
