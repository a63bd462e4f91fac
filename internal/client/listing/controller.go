// Package listing drives one paginated, searchable list: it owns the
// current page and term, debounces search input and discards results that
// a newer request has superseded.
package listing

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
	"github.com/dmitrijs2005/healthkeeper/internal/client/search"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
)

// Lister is the repository call a Controller pages through.
type Lister[T any] interface {
	List(ctx context.Context, page, pageSize int, term string) (repository.Page[T], error)
}

// Snapshot is the visible state of the list.
type Snapshot[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalCount int
	PageCount  int
	Term       string
	// Err is the failure of the last load; Items still hold the last
	// successful result.
	Err error
}

type config struct {
	interval time.Duration
	timer    search.Timer
	log      logging.Logger
}

// Option configures a Controller.
type Option func(*config)

// WithDebounce sets the quiet interval before a search term is applied.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.interval = d }
}

// WithTimer replaces the wall-clock timer used by the search debouncer.
func WithTimer(t search.Timer) Option {
	return func(c *config) { c.timer = t }
}

func WithLogger(l logging.Logger) Option {
	return func(c *config) { c.log = l }
}

// Controller keeps one paginated, searchable listing: the current page,
// the applied search term and the last items loaded. Loads that were
// superseded by a newer page or term are discarded, and a failed load keeps
// the previous items visible with Err set.
type Controller[T any] struct {
	ctx      context.Context
	lister   Lister[T]
	pageSize int
	log      logging.Logger
	debounce *search.Debouncer

	mu       sync.Mutex
	gen      uint64
	page     int
	term     string
	items    []T
	total    int
	err      error
	onChange func(Snapshot[T])
}

// NewController builds a controller whose debounced searches run with ctx.
func NewController[T any](ctx context.Context, l Lister[T], pageSize int, opts ...Option) *Controller[T] {
	cfg := config{interval: search.DefaultInterval, log: logging.Discard()}
	for _, o := range opts {
		o(&cfg)
	}
	c := &Controller[T]{
		ctx:      ctx,
		lister:   l,
		pageSize: pageSize,
		log:      cfg.log,
		page:     1,
	}
	var dopts []search.Option
	if cfg.timer != nil {
		dopts = append(dopts, search.WithTimer(cfg.timer))
	}
	c.debounce = search.NewDebouncer(cfg.interval, c.searchFired, dopts...)
	return c
}

// OnChange registers fn to receive every applied snapshot.
func (c *Controller[T]) OnChange(fn func(Snapshot[T])) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Search queues term behind the debouncer. An empty term reloads at once.
func (c *Controller[T]) Search(term string) { c.debounce.Push(term) }

// FlushSearch runs a queued search now.
func (c *Controller[T]) FlushSearch() { c.debounce.Flush() }

// searchFired resets to page 1 and applies the term before the list call is
// issued, so a page change racing the search is already superseded.
func (c *Controller[T]) searchFired(term string) {
	c.mu.Lock()
	c.term = term
	c.page = 1
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.load(c.ctx, gen, 1, term); err != nil {
		c.log.Warn(c.ctx, "search load failed", "term", term, "error", err)
	}
}

// SetPage loads page with the applied term.
func (c *Controller[T]) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	c.mu.Lock()
	c.page = page
	c.gen++
	gen, term := c.gen, c.term
	c.mu.Unlock()
	return c.load(ctx, gen, page, term)
}

// Refresh reloads the current page.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen, page, term := c.gen, c.page, c.term
	c.mu.Unlock()
	return c.load(ctx, gen, page, term)
}

func (c *Controller[T]) load(ctx context.Context, gen uint64, page int, term string) error {
	res, err := c.lister.List(ctx, page, c.pageSize, term)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug(ctx, "discarding superseded page", "page", page, "term", term)
		return nil
	}
	if err != nil {
		c.err = err
	} else {
		c.err = nil
		c.items = res.Items
		c.total = res.TotalCount
		c.page = res.Page
	}
	snap := c.snapshotLocked()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return err
}

// Snapshot returns a copy of the listing state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	p := repository.Page[T]{TotalCount: c.total, PageSize: c.pageSize}
	return Snapshot[T]{
		Items:      append([]T(nil), c.items...),
		Page:       c.page,
		PageSize:   c.pageSize,
		TotalCount: c.total,
		PageCount:  p.PageCount(),
		Term:       c.term,
		Err:        c.err,
	}
}

// Close drops any queued search.
func (c *Controller[T]) Close() { c.debounce.Stop() }
