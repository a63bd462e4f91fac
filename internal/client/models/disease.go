package models

import (
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
)

// Disease is a catalogued condition identified by its CID code.
type Disease struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CIDCode     string `json:"cid_code"`
	Description string `json:"description"`
	Audit
}

// DiseaseInput is the writable part of a Disease.
type DiseaseInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	CIDCode     string `json:"cid_code" validate:"required,max=10"`
	Description string `json:"description" validate:"max=2000"`
}

func (in DiseaseInput) normalized() DiseaseInput {
	in.Name = strings.TrimSpace(in.Name)
	in.CIDCode = strings.ToUpper(strings.TrimSpace(in.CIDCode))
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func (in DiseaseInput) TableRow() any { return in.normalized() }

func (in DiseaseInput) ProcedureParams(id string) any {
	n := in.normalized()
	p := map[string]any{
		"p_name":        n.Name,
		"p_cid_code":    n.CIDCode,
		"p_description": n.Description,
	}
	if id != "" {
		p["p_id"] = id
	}
	return p
}

var DiseaseDescriptor = repository.Descriptor{
	Table:           "diseases",
	OrderBy:         []repository.Order{{Column: "name"}},
	SearchColumns:   []string{"name", "cid_code"},
	CreateProcedure: "create_disease",
	UpdateProcedure: "update_disease",
	DeleteProcedure: "soft_delete_disease",
}

type DiseaseRepository = repository.Repository[Disease, DiseaseInput]

func NewDiseaseRepository(gw repository.Invoker, c *client.Client, opts ...repository.Option) *DiseaseRepository {
	return repository.New[Disease, DiseaseInput](DiseaseDescriptor, gw, c, opts...)
}
