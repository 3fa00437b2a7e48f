package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/repository"
	"github.com/roach88/tessera/internal/value"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tables implements repository.Tables on a connection or transaction.
type tables struct {
	q querier
}

func (t tables) Insert(ctx context.Context, s *repository.CollectionSchema, rows []repository.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := []string{"id"}
	for _, f := range s.Info.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.Table), strings.Join(cols, ", "), placeholders(len(cols)))
	for _, r := range rows {
		args, err := rowArgs(s.Info, r)
		if err != nil {
			return err
		}
		if _, err := t.q.ExecContext(ctx, query, append([]any{r.Entity.ID.String()}, args...)...); err != nil {
			return fmt.Errorf("insert %s %s: %w", s.Info, r.Entity, err)
		}
	}
	return nil
}

func (t tables) Update(ctx context.Context, s *repository.CollectionSchema, rows []repository.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if len(s.Info.Fields) == 0 {
		return nil
	}
	sets := make([]string, len(s.Info.Fields))
	for i, f := range s.Info.Fields {
		sets[i] = quoteIdent(f.Name) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(s.Table), strings.Join(sets, ", "))
	for _, r := range rows {
		args, err := rowArgs(s.Info, r)
		if err != nil {
			return err
		}
		res, err := t.q.ExecContext(ctx, query, append(args, r.Entity.ID.String())...)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", s.Info, r.Entity, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &model.Error{Code: model.ErrCodeMissingKey, Message: "no stored row", Member: s.Info.String(), Entity: r.Entity}
		}
	}
	return nil
}

func (t tables) Delete(ctx context.Context, s *repository.CollectionSchema, entities []model.Entity) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(s.Table))
	for _, e := range entities {
		if _, err := t.q.ExecContext(ctx, query, e.ID.String()); err != nil {
			return fmt.Errorf("delete %s %s: %w", s.Info, e, err)
		}
	}
	return nil
}

func (t tables) Truncate(ctx context.Context, table string) error {
	if _, err := t.q.ExecContext(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

func (t tables) InsertPairs(ctx context.Context, s *repository.RelationSchema, pairs []repository.Pair) error {
	query := fmt.Sprintf("INSERT INTO %s (parent_id, child_id) VALUES (?, ?)", quoteIdent(s.Table))
	for _, p := range pairs {
		if _, err := t.q.ExecContext(ctx, query, p.Parent.ID.String(), p.Child.ID.String()); err != nil {
			return fmt.Errorf("insert %s (%s, %s): %w", s.Info, p.Parent, p.Child, err)
		}
	}
	return nil
}

func (t tables) DeletePairs(ctx context.Context, s *repository.RelationSchema, pairs []repository.Pair) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE parent_id = ? AND child_id = ?", quoteIdent(s.Table))
	for _, p := range pairs {
		if _, err := t.q.ExecContext(ctx, query, p.Parent.ID.String(), p.Child.ID.String()); err != nil {
			return fmt.Errorf("delete %s (%s, %s): %w", s.Info, p.Parent, p.Child, err)
		}
	}
	return nil
}

func (t tables) SelectCollection(ctx context.Context, s *repository.CollectionSchema, target model.CollectionMutator) error {
	if err := repository.RequireEmpty(s.Info, target.Len()); err != nil {
		return err
	}
	cols := []string{"id"}
	for _, f := range s.Info.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	// ORDER BY id keeps load order deterministic.
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(cols, ", "), quoteIdent(s.Table))
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select %s: %w", s.Info, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		raw := make([]any, len(s.Info.Fields))
		dest := []any{&id}
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", s.Info, err)
		}
		e, err := entity(s.Info.EntityType, id)
		if err != nil {
			return fmt.Errorf("select %s: %w", s.Info, err)
		}
		bag := value.Object{}
		for i, f := range s.Info.Fields {
			v, err := decodeColumn(f, raw[i])
			if err != nil {
				return fmt.Errorf("select %s %s: %w", s.Info, e, err)
			}
			if v != nil {
				bag[f.Name] = v
			}
		}
		p, err := s.Info.Decode(bag)
		if err != nil {
			return fmt.Errorf("select %s %s: %w", s.Info, e, err)
		}
		if err := target.Add(e, p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (t tables) SelectRelation(ctx context.Context, s *repository.RelationSchema, target model.RelationMutator, parents, children repository.KeySpace) error {
	if err := repository.RequireEmpty(s.Info, target.Len()); err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT parent_id, child_id FROM %s ORDER BY parent_id, child_id", quoteIdent(s.Table))
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("select %s: %w", s.Info, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid, cid string
		if err := rows.Scan(&pid, &cid); err != nil {
			return fmt.Errorf("scan %s: %w", s.Info, err)
		}
		parent, err := entity(s.Info.Parent, pid)
		if err != nil {
			return fmt.Errorf("select %s: %w", s.Info, err)
		}
		child, err := entity(s.Info.Child, cid)
		if err != nil {
			return fmt.Errorf("select %s: %w", s.Info, err)
		}
		if !parents.Contains(parent) {
			return model.NewDanglingPairError(s.Info, "parent", parent, child)
		}
		if !children.Contains(child) {
			return model.NewDanglingPairError(s.Info, "child", parent, child)
		}
		if err := target.Add(parent, child); err != nil {
			return err
		}
	}
	return rows.Err()
}

func rowArgs(info *model.CollectionInfo, r repository.Row) ([]any, error) {
	args := make([]any, len(info.Fields))
	for i, f := range info.Fields {
		v, _ := r.Properties.Get(f.Name)
		arg, err := encodeColumn(v)
		if err != nil {
			return nil, fmt.Errorf("%s %s field %q: %w", info, r.Entity, f.Name, err)
		}
		args[i] = arg
	}
	return args, nil
}

func entity(t model.EntityType, id string) (model.Entity, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return model.Entity{}, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return model.NewEntity(t, u), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
