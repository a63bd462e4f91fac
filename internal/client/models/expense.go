package models

import (
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentPix      = "pix"
	PaymentTransfer = "transfer"
	PaymentInvoice  = "invoice"
)

// Expense is a cost booked against a vehicle. TotalValue is always
// round2(Quantity * UnitPrice).
type Expense struct {
	ID            string  `json:"id"`
	ResourceID    string  `json:"resource_id"`
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	Supplier      string  `json:"supplier"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	PaymentMethod string  `json:"payment_method"`
	TotalValue    float64 `json:"total_value"`
	Audit
}

// Consistent reports whether TotalValue matches its inputs.
func (e Expense) Consistent() bool {
	return e.TotalValue == ExpenseTotal(e.Quantity, e.UnitPrice)
}

// ExpenseTotal is quantity times unit price, rounded to 2 decimals.
func ExpenseTotal(quantity, unitPrice float64) float64 {
	return common.Round2(quantity * unitPrice)
}

// ExpenseInput has no total: it is derived, never accepted from callers.
type ExpenseInput struct {
	ResourceID    string  `json:"resource_id" validate:"required"`
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Description   string  `json:"description" validate:"required,max=300"`
	Supplier      string  `json:"supplier" validate:"max=200"`
	Quantity      float64 `json:"quantity" validate:"gte=1"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0.01"`
	PaymentMethod string  `json:"payment_method" validate:"required,oneof=cash card pix transfer invoice"`
}

type expenseRow struct {
	ExpenseInput
	TotalValue float64 `json:"total_value"`
}

func (in ExpenseInput) normalized() ExpenseInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Supplier = strings.TrimSpace(in.Supplier)
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	return in
}

// TableRow carries the recomputed total, since a direct table write skips
// the procedure that would otherwise derive it.
func (in ExpenseInput) TableRow() any {
	n := in.normalized()
	return expenseRow{ExpenseInput: n, TotalValue: ExpenseTotal(n.Quantity, n.UnitPrice)}
}

func (in ExpenseInput) ProcedureParams(id string) any {
	n := in.normalized()
	p := map[string]any{
		"p_resource_id":    n.ResourceID,
		"p_date":           n.Date,
		"p_description":    n.Description,
		"p_supplier":       n.Supplier,
		"p_quantity":       n.Quantity,
		"p_unit_price":     n.UnitPrice,
		"p_payment_method": n.PaymentMethod,
	}
	if id != "" {
		p["p_id"] = id
	}
	return p
}

var ExpenseDescriptor = repository.Descriptor{
	Table:           "expenses",
	OrderBy:         []repository.Order{{Column: "date", Desc: true}},
	SearchColumns:   []string{"description", "supplier"},
	CreateProcedure: "create_expense",
	UpdateProcedure: "update_expense",
	DeleteProcedure: "soft_delete_expense",
}

// ExpenseRepository serves the expenses table.
type ExpenseRepository = repository.Repository[Expense, ExpenseInput]

func NewExpenseRepository(gw repository.Invoker, c *client.Client, opts ...repository.Option) *ExpenseRepository {
	return repository.New[Expense, ExpenseInput](ExpenseDescriptor, gw, c, opts...)
}
