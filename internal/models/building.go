package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Building is owned by a tenant schema and has many units.
type Building struct {
	ID        uuid.UUID
	Name      string
	Address   string
	CreatedAt time.Time
}

// Unit belongs to one building.
type Unit struct {
	ID         uuid.UUID
	BuildingID uuid.UUID
	Label      string
	Floor      string
	CreatedAt  time.Time
}

// UnitMemberRole is the role a resident holds within a unit.
type UnitMemberRole string

const (
	UnitMemberOwner  UnitMemberRole = "owner"
	UnitMemberTenant UnitMemberRole = "tenant"
)

// UnitMember links a platform user to a unit.
type UnitMember struct {
	UnitID    uuid.UUID
	UserID    uuid.UUID
	Role      UnitMemberRole
	CreatedAt time.Time
}

// Recipient is a unit member resolved to a deliverable address.
type Recipient struct {
	UnitID uuid.UUID
	UserID uuid.UUID
	Email  string
	Name   string
}

// FeeFrequency is how often a fee template is charged.
type FeeFrequency string

const (
	FeeMonthly FeeFrequency = "monthly"
	FeeYearly  FeeFrequency = "yearly"
)

// FeeTemplate is a recurring charge definition. A nil BuildingID applies to every building.
type FeeTemplate struct {
	ID         uuid.UUID
	BuildingID *uuid.UUID
	Name       string
	Amount     decimal.Decimal
	Frequency  FeeFrequency
	Active     bool
	CreatedAt  time.Time
}

// AppliesTo reports whether the template is charged to units of buildingID.
func (f *FeeTemplate) AppliesTo(buildingID uuid.UUID) bool {
	return f.BuildingID == nil || *f.BuildingID == buildingID
}

// UnitFee assigns a fee template to a unit, optionally overriding the amount.
type UnitFee struct {
	UnitID        uuid.UUID
	FeeTemplateID uuid.UUID
	Amount        *decimal.Decimal
}
