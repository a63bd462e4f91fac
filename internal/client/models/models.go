// Package models defines the entities served by the resource repositories:
// their row shapes, write payloads, validation rules and table descriptors.
package models

import (
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
)

// Audit holds the bookkeeping columns every table carries.
type Audit struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// Deleted reports whether the row was soft-deleted.
func (a Audit) Deleted() bool { return a.DeletedAt != nil }

// Repositories bundles one repository per entity.
type Repositories struct {
	Diseases       *DiseaseRepository
	Vehicles       *VehicleRepository
	Expenses       *ExpenseRepository
	Administrators *AdministratorRepository
}

func NewRepositories(gw repository.Invoker, c *client.Client, opts ...repository.Option) *Repositories {
	v := repository.NewValidator()
	opts = append([]repository.Option{repository.WithValidator(v)}, opts...)
	return &Repositories{
		Diseases:       NewDiseaseRepository(gw, c, opts...),
		Vehicles:       NewVehicleRepository(gw, c, opts...),
		Expenses:       NewExpenseRepository(gw, c, opts...),
		Administrators: NewAdministratorRepository(gw, c, opts...),
	}
}
