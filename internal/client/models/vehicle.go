package models

import (
	"regexp"
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/client/repository"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

// platePattern accepts the legacy AAA9999 and the Mercosul AAA9A99 formats.
var platePattern = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z0-9][0-9]{2}$`)

// NormalizePlate upper-cases a plate and drops separators.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.NewReplacer("-", "", " ", "").Replace(plate)
}

// ValidPlate accepts the old (ABC1234) and Mercosul (ABC1D23) formats,
// ignoring case, spaces and dashes.
func ValidPlate(plate string) bool {
	return platePattern.MatchString(NormalizePlate(plate))
}

// Vehicle is a fleet vehicle that expenses are booked against.
type Vehicle struct {
	ID         string `json:"id"`
	Plate      string `json:"plate"`
	Model      string `json:"model"`
	Brand      string `json:"brand"`
	Year       int    `json:"year"`
	Department string `json:"department"`
	Audit
}

// VehicleInput is the writable part of a Vehicle.
type VehicleInput struct {
	Plate      string `json:"plate" validate:"required"`
	Model      string `json:"model" validate:"required,max=100"`
	Brand      string `json:"brand" validate:"required,max=100"`
	Year       int    `json:"year" validate:"gte=1950,lte=2100"`
	Department string `json:"department" validate:"max=100"`
}

func (in VehicleInput) Validate() error {
	if in.Plate != "" && !ValidPlate(in.Plate) {
		return common.NewValidationError("plate", "must match AAA9999 or AAA9A99")
	}
	return nil
}

func (in VehicleInput) normalized() VehicleInput {
	in.Plate = NormalizePlate(in.Plate)
	in.Model = strings.TrimSpace(in.Model)
	in.Brand = strings.TrimSpace(in.Brand)
	in.Department = strings.TrimSpace(in.Department)
	return in
}

func (in VehicleInput) TableRow() any { return in.normalized() }

func (in VehicleInput) ProcedureParams(id string) any {
	n := in.normalized()
	p := map[string]any{
		"p_plate":      n.Plate,
		"p_model":      n.Model,
		"p_brand":      n.Brand,
		"p_year":       n.Year,
		"p_department": n.Department,
	}
	if id != "" {
		p["p_id"] = id
	}
	return p
}

var VehicleDescriptor = repository.Descriptor{
	Table:           "vehicles",
	OrderBy:         []repository.Order{{Column: "plate"}},
	SearchColumns:   []string{"plate", "model", "brand"},
	CreateProcedure: "create_vehicle",
	UpdateProcedure: "update_vehicle",
	DeleteProcedure: "soft_delete_vehicle",
}

type VehicleRepository = repository.Repository[Vehicle, VehicleInput]

func NewVehicleRepository(gw repository.Invoker, c *client.Client, opts ...repository.Option) *VehicleRepository {
	return repository.New[Vehicle, VehicleInput](VehicleDescriptor, gw, c, opts...)
}
