package models

import (
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
)

// Administrator is a staff or admin account managed from the back office.
type Administrator struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Phone       string `json:"phone"`
	FirstAccess bool   `json:"first_access"`
	Audit
}

// AdministratorInput never writes first_access; the backend owns it.
type AdministratorInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin staff"`
	Phone string `json:"phone" validate:"max=30"`
}

func (in AdministratorInput) normalized() AdministratorInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.Phone = strings.TrimSpace(in.Phone)
	return in
}

func (in AdministratorInput) TableRow() any { return in.normalized() }

func (in AdministratorInput) ProcedureParams(id string) any {
	n := in.normalized()
	p := map[string]any{
		"p_name":  n.Name,
		"p_email": n.Email,
		"p_role":  n.Role,
		"p_phone": n.Phone,
	}
	if id != "" {
		p["p_id"] = id
	}
	return p
}

var AdministratorDescriptor = repository.Descriptor{
	Table:           "administrators",
	OrderBy:         []repository.Order{{Column: "name"}},
	SearchColumns:   []string{"name", "email"},
	CreateProcedure: "create_administrator",
	UpdateProcedure: "update_administrator",
	DeleteProcedure: "soft_delete_administrator",
}

type AdministratorRepository = repository.Repository[Administrator, AdministratorInput]

func NewAdministratorRepository(gw repository.Invoker, c *client.Client, opts ...repository.Option) *AdministratorRepository {
	return repository.New[Administrator, AdministratorInput](AdministratorDescriptor, gw, c, opts...)
}
