package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/models"
)

// AddExpense prompts for an expense of a vehicle and records it. The total
// is computed from quantity and unit price; it is never asked for.
func (a *App) AddExpense(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	var in models.ExpenseInput
	var err error
	if in.ResourceID, err = getSimpleText(a.reader, "Vehicle id", a.out); err != nil {
		return err
	}
	if in.Date, err = GetTextDefault(a.reader, "Date (YYYY-MM-DD)", time.Now().Format(time.DateOnly), a.out); err != nil {
		return err
	}
	if in.Description, err = getSimpleText(a.reader, "Description", a.out); err != nil {
		return err
	}
	if in.Supplier, err = getSimpleText(a.reader, "Supplier", a.out); err != nil {
		return err
	}
	if in.Quantity, err = a.number("Quantity"); err != nil {
		return err
	}
	if in.UnitPrice, err = a.number("Unit price"); err != nil {
		return err
	}
	if in.PaymentMethod, err = GetTextDefault(a.reader, "Payment method (cash, card, pix, transfer, invoice)", models.PaymentPix, a.out); err != nil {
		return err
	}

	e, err := a.svc.Repos.Expenses.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Expense %s recorded, total %s\n", e.ID, money(e.TotalValue))
	return nil
}

// number reads a decimal, accepting a comma as the separator.
func (a *App) number(prompt string) (float64, error) {
	s, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", strings.ToLower(prompt), s)
	}
	return v, nil
}
