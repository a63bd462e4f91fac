// Package repository implements paginated, searchable, soft-delete-aware
// CRUD for one backend table. Writes go through the RPC gateway and fall
// back to direct table writes when the procedure is not deployed.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/rpc"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const (
	MaxPageSize = 100

	colID        = "id"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
	colDeletedAt = "deleted_at"
)

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Descriptor names the table and procedures backing one entity.
type Descriptor struct {
	Table string
	// OrderBy is the canonical listing order; id is always appended as the
	// final tie-breaker so pages never overlap.
	OrderBy       []Order
	SearchColumns []string

	CreateProcedure string
	UpdateProcedure string
	DeleteProcedure string
}

// Input is a typed write payload.
type Input interface {
	// TableRow returns the columns for a direct table write, derived
	// columns included.
	TableRow() any
	// ProcedureParams returns the named parameters for the create (id == "")
	// or update procedure.
	ProcedureParams(id string) any
}

// Invoker runs a procedure with a table fallback.
type Invoker interface {
	Invoke(ctx context.Context, procedure string, params any, fallback rpc.Fallback) (rpc.Result, error)
}

// Page is one slice of a listing together with the number of rows that
// match the same filter.
type Page[T any] struct {
	Items      []T
	TotalCount int
	Page       int
	PageSize   int
}

// PageCount is ceil(TotalCount / PageSize).
func (p Page[T]) PageCount() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

type options struct {
	log      logging.Logger
	now      func() time.Time
	validate *Validator
}

// Option configures a Repository.
type Option func(*options)

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the clock used for created_at, updated_at and deleted_at
// on the table path.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithValidator shares one validator between repositories.
func WithValidator(v *Validator) Option {
	return func(o *options) { o.validate = v }
}

// Repository serves one table. It holds no mutable state; calls are
// independent.
type Repository[T any, W Input] struct {
	desc     Descriptor
	gw       Invoker
	c        *client.Client
	log      logging.Logger
	now      func() time.Time
	validate *Validator
}

// New returns a Repository for desc. Reads go straight to the table through
// c; writes go through gw.
func New[T any, W Input](desc Descriptor, gw Invoker, c *client.Client, opts ...Option) *Repository[T, W] {
	o := options{log: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.validate == nil {
		o.validate = NewValidator()
	}
	return &Repository[T, W]{
		desc:     desc,
		gw:       gw,
		c:        c,
		log:      o.log.With("table", desc.Table),
		now:      o.now,
		validate: o.validate,
	}
}

func (r *Repository[T, W]) Descriptor() Descriptor { return r.desc }

// filter applies the predicates shared by the list and count queries.
func (r *Repository[T, W]) filter(q *client.Query, term string) *client.Query {
	return q.IsNull(colDeletedAt).ILikeAny(term, r.desc.SearchColumns...)
}

// List returns one page of live rows matching term. page < 1 is treated as
// 1; pageSize must be within [1, MaxPageSize]. Items and total are fetched
// concurrently with identical filters.
func (r *Repository[T, W]) List(ctx context.Context, page, pageSize int, term string) (Page[T], error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page[T]{}, common.NewValidationError("page_size", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	if page < 1 {
		page = 1
	}

	items := r.filter(r.c.From(r.desc.Table).Select("*"), term)
	for _, o := range r.desc.OrderBy {
		items.Order(o.Column, !o.Desc)
	}
	items.Order(colID, true).Offset((page - 1) * pageSize).Limit(pageSize)
	count := r.filter(r.c.From(r.desc.Table), term)

	var rows []T
	var total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return items.Execute(gctx, &rows)
	})
	g.Go(func() error {
		var err error
		total, err = count.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page[T]{}, r.wrap("list", err)
	}
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Items: rows, TotalCount: total, Page: page, PageSize: pageSize}, nil
}

// Get returns the row with id, soft-deleted or not.
func (r *Repository[T, W]) Get(ctx context.Context, id string) (T, error) {
	row, err := client.Single[T](ctx, r.c.From(r.desc.Table).Select("*").Eq(colID, id))
	if err != nil {
		var zero T
		return zero, r.wrap("get", err)
	}
	return row, nil
}

// Create validates w, writes it and returns the stored row.
func (r *Repository[T, W]) Create(ctx context.Context, w W) (T, error) {
	var zero T
	if err := r.validate.Check(w); err != nil {
		return zero, err
	}
	fallback := func(ctx context.Context) (rpc.Result, error) {
		row, err := columns(w.TableRow())
		if err != nil {
			return rpc.Result{}, err
		}
		delete(row, colID)
		now := r.now().UTC()
		row[colCreatedAt] = now
		row[colUpdatedAt] = now
		row[colDeletedAt] = nil

		var out []struct {
			ID string `json:"id"`
		}
		if err := r.c.From(r.desc.Table).Insert(ctx, row, &out); err != nil {
			return rpc.Result{}, err
		}
		if len(out) == 0 {
			return rpc.Result{}, fmt.Errorf("insert returned no row")
		}
		return rpc.Result{Success: true, ID: out[0].ID}, nil
	}

	res, err := r.write(ctx, r.desc.CreateProcedure, w.ProcedureParams(""), fallback)
	if err != nil {
		return zero, r.wrap("create", err)
	}
	if res.ID == "" {
		return zero, &Error{Operation: "create", Table: r.desc.Table, Message: "write answered without an id"}
	}
	r.log.Info(ctx, "created", "id", res.ID, "path", res.Path.String())
	return r.Get(ctx, res.ID)
}

// Update validates w and patches the mutable columns of the live row id.
// id, created_at and deleted_at are never written through this path.
func (r *Repository[T, W]) Update(ctx context.Context, id string, w W) (T, error) {
	var zero T
	if err := r.validate.Check(w); err != nil {
		return zero, err
	}
	fallback := func(ctx context.Context) (rpc.Result, error) {
		patch, err := columns(w.TableRow())
		if err != nil {
			return rpc.Result{}, err
		}
		delete(patch, colID)
		delete(patch, colCreatedAt)
		delete(patch, colDeletedAt)
		patch[colUpdatedAt] = r.now().UTC()

		var out []json.RawMessage
		err = r.c.From(r.desc.Table).Eq(colID, id).IsNull(colDeletedAt).Update(ctx, patch, &out)
		if err != nil {
			return rpc.Result{}, err
		}
		if len(out) == 0 {
			return rpc.Result{}, fmt.Errorf("%s %s: %w", r.desc.Table, id, common.ErrNotFound)
		}
		return rpc.Result{Success: true, ID: id}, nil
	}

	res, err := r.write(ctx, r.desc.UpdateProcedure, w.ProcedureParams(id), fallback)
	if err != nil {
		return zero, r.wrap("update", err)
	}
	r.log.Info(ctx, "updated", "id", id, "path", res.Path.String())
	return r.Get(ctx, id)
}

// SoftDelete marks id deleted. The row stays retrievable through Get but
// leaves every List result.
func (r *Repository[T, W]) SoftDelete(ctx context.Context, id, reason string) error {
	fallback := func(ctx context.Context) (rpc.Result, error) {
		now := r.now().UTC()
		patch := map[string]any{colDeletedAt: now, colUpdatedAt: now}

		var out []json.RawMessage
		err := r.c.From(r.desc.Table).Eq(colID, id).IsNull(colDeletedAt).Update(ctx, patch, &out)
		if err != nil {
			return rpc.Result{}, err
		}
		if len(out) == 0 {
			return rpc.Result{}, fmt.Errorf("%s %s: %w", r.desc.Table, id, common.ErrNotFound)
		}
		// no audit table on this path
		r.log.Info(ctx, "soft delete reason", "id", id, "reason", reason)
		return rpc.Result{Success: true, ID: id}, nil
	}

	params := map[string]any{"p_id": id, "p_reason": reason}
	res, err := r.write(ctx, r.desc.DeleteProcedure, params, fallback)
	if err != nil {
		return r.wrap("delete", err)
	}
	r.log.Info(ctx, "soft deleted", "id", id, "path", res.Path.String())
	return nil
}

// write invokes procedure through the gateway, or the fallback directly when
// the entity has no procedure.
func (r *Repository[T, W]) write(ctx context.Context, procedure string, params any, fallback rpc.Fallback) (rpc.Result, error) {
	if procedure == "" {
		res, err := fallback(ctx)
		res.Path = rpc.PathFallback
		return res, err
	}
	return r.gw.Invoke(ctx, procedure, params, fallback)
}

// columns turns a row value into its JSON column map.
func columns(row any) (map[string]any, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return m, nil
}
