package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/healthkeeper/internal/client/models"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
	"github.com/dmitrijs2005/healthkeeper/internal/client/services"
)

// view is one page of rows ready for printing.
type view struct {
	header     []string
	rows       [][]string
	page       int
	pageCount  int
	totalCount int
	term       string
}

// table is what the list, search and delete commands need from an entity.
type table interface {
	list(ctx context.Context, page, pageSize int) (view, error)
	search(ctx context.Context, svc *services.Services, term string) (view, error)
	softDelete(ctx context.Context, id, reason string) error
}

type repoTable[T any, W repository.Input] struct {
	repo   *repository.Repository[T, W]
	header []string
	row    func(T) []string
}

func (t repoTable[T, W]) view(items []T) view {
	v := view{header: t.header}
	for _, it := range items {
		v.rows = append(v.rows, t.row(it))
	}
	return v
}

func (t repoTable[T, W]) list(ctx context.Context, page, pageSize int) (view, error) {
	p, err := t.repo.List(ctx, page, pageSize, "")
	if err != nil {
		return view{}, err
	}
	v := t.view(p.Items)
	v.page, v.pageCount, v.totalCount = p.Page, p.PageCount(), p.TotalCount
	return v, nil
}

// search runs term through a list controller, flushing the debounce since
// the whole term is already typed.
func (t repoTable[T, W]) search(ctx context.Context, svc *services.Services, term string) (view, error) {
	lc := services.NewListing[T](ctx, svc, t.repo)
	defer lc.Close()
	lc.Search(term)
	lc.FlushSearch()
	snap := lc.Snapshot()
	if snap.Err != nil {
		return view{}, snap.Err
	}
	v := t.view(snap.Items)
	v.page, v.pageCount, v.totalCount, v.term = snap.Page, snap.PageCount, snap.TotalCount, snap.Term
	return v, nil
}

func (t repoTable[T, W]) softDelete(ctx context.Context, id, reason string) error {
	return t.repo.SoftDelete(ctx, id, reason)
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func newTables(r *models.Repositories) map[string]table {
	diseases := repoTable[models.Disease, models.DiseaseInput]{
		repo:   r.Diseases,
		header: []string{"ID", "CID", "NAME"},
		row:    func(d models.Disease) []string { return []string{d.ID, d.CIDCode, d.Name} },
	}
	vehicles := repoTable[models.Vehicle, models.VehicleInput]{
		repo:   r.Vehicles,
		header: []string{"ID", "PLATE", "BRAND", "MODEL", "YEAR"},
		row: func(v models.Vehicle) []string {
			return []string{v.ID, v.Plate, v.Brand, v.Model, strconv.Itoa(v.Year)}
		},
	}
	expenses := repoTable[models.Expense, models.ExpenseInput]{
		repo:   r.Expenses,
		header: []string{"ID", "DATE", "DESCRIPTION", "QTY", "UNIT", "TOTAL"},
		row: func(e models.Expense) []string {
			return []string{e.ID, e.Date, e.Description,
				strconv.FormatFloat(e.Quantity, 'f', -1, 64), money(e.UnitPrice), money(e.TotalValue)}
		},
	}
	admins := repoTable[models.Administrator, models.AdministratorInput]{
		repo:   r.Administrators,
		header: []string{"ID", "NAME", "EMAIL", "ROLE"},
		row: func(a models.Administrator) []string {
			return []string{a.ID, a.Name, a.Email, a.Role}
		},
	}
	return map[string]table{
		"diseases": diseases, "disease": diseases,
		"vehicles": vehicles, "vehicle": vehicles,
		"expenses": expenses, "expense": expenses,
		"administrators": admins, "administrator": admins, "admins": admins,
	}
}

func (a *App) table(entity string) (table, error) {
	t, ok := a.tables[strings.ToLower(entity)]
	if !ok {
		return nil, errUnknownEntity
	}
	return t, nil
}

// List prints one page of entity.
func (a *App) List(ctx context.Context, entity string, page int) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	t, err := a.table(entity)
	if err != nil {
		return err
	}
	v, err := t.list(ctx, page, a.svc.Config.PageSize)
	if err != nil {
		return err
	}
	return printView(a.out, v)
}

// Search prints the first page of entity rows matching term.
func (a *App) Search(ctx context.Context, entity, term string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	t, err := a.table(entity)
	if err != nil {
		return err
	}
	v, err := t.search(ctx, a.svc, term)
	if err != nil {
		return err
	}
	return printView(a.out, v)
}

// Delete soft-deletes entity id after asking for a reason.
func (a *App) Delete(ctx context.Context, entity, id string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	t, err := a.table(entity)
	if err != nil {
		return err
	}
	reason, err := getSimpleText(a.reader, "Reason for deletion", a.out)
	if err != nil {
		return err
	}
	if reason == "" {
		return fmt.Errorf("a reason is required")
	}
	if err := t.softDelete(ctx, id, reason); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted", id)
	return nil
}

func printView(w io.Writer, v view) error {
	if len(v.rows) == 0 {
		_, err := fmt.Fprintln(w, "No records found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(v.header, "\t"))
	for _, r := range v.rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%d records)\n", v.page, v.pageCount, v.totalCount)
	return err
}
