package buildings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

// ErrInvalidArgument is returned for malformed directory input.
var ErrInvalidArgument = errors.New("invalid argument")

// Service manages the buildings, units, residents and fee templates of a tenant.
type Service struct {
	tenants store.TenantScope
	now     func() time.Time
}

func NewService(tenants store.TenantScope) *Service {
	return &Service{
		tenants: tenants,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateBuilding(ctx context.Context, slug, name, address string) (*models.Building, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: building name is required", ErrInvalidArgument)
	}

	building := &models.Building{
		ID:        uuid.Must(uuid.NewV7()),
		Name:      name,
		Address:   strings.TrimSpace(address),
		CreatedAt: s.now(),
	}

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.CreateBuilding(ctx, building)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("tenant", slug).Str("building_id", building.ID.String()).Msg("Building created")
	return building, nil
}

func (s *Service) GetBuilding(ctx context.Context, slug string, buildingID uuid.UUID) (*models.Building, error) {
	var building *models.Building
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		building, err = bs.GetBuilding(ctx, buildingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return building, nil
}

// CreateUnit adds a unit to a building. Returns store.ErrBuildingNotFound for an unknown building.
func (s *Service) CreateUnit(ctx context.Context, slug string, buildingID uuid.UUID, label, floor string) (*models.Unit, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("%w: unit label is required", ErrInvalidArgument)
	}

	unit := &models.Unit{
		ID:         uuid.Must(uuid.NewV7()),
		BuildingID: buildingID,
		Label:      label,
		Floor:      strings.TrimSpace(floor),
		CreatedAt:  s.now(),
	}

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, buildingID); err != nil {
			return err
		}
		return bs.CreateUnit(ctx, unit)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (s *Service) ListUnits(ctx context.Context, slug string, buildingID uuid.UUID) ([]*models.Unit, error) {
	var units []*models.Unit
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, buildingID); err != nil {
			return err
		}
		var err error
		units, err = bs.ListUnits(ctx, buildingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// AddResident links a platform user to a unit. The user must exist in the shared schema
// before notices can reach them.
func (s *Service) AddResident(ctx context.Context, slug string, unitID, userID uuid.UUID, role models.UnitMemberRole) error {
	if role == "" {
		role = models.UnitMemberOwner
	}
	if role != models.UnitMemberOwner && role != models.UnitMemberTenant {
		return fmt.Errorf("%w: unknown resident role %q", ErrInvalidArgument, role)
	}

	return s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.AddUnitMember(ctx, &models.UnitMember{
			UnitID:    unitID,
			UserID:    userID,
			Role:      role,
			CreatedAt: s.now(),
		})
	})
}

// NewFeeTemplate describes a recurring charge. A nil BuildingID applies to every building.
type NewFeeTemplate struct {
	BuildingID *uuid.UUID
	Name       string
	Amount     decimal.Decimal
	Frequency  models.FeeFrequency
}

func (s *Service) CreateFeeTemplate(ctx context.Context, slug string, in NewFeeTemplate) (*models.FeeTemplate, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: fee name is required", ErrInvalidArgument)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: fee amount must not be negative", ErrInvalidArgument)
	}
	if in.Frequency != models.FeeMonthly && in.Frequency != models.FeeYearly {
		return nil, fmt.Errorf("%w: unknown fee frequency %q", ErrInvalidArgument, in.Frequency)
	}

	fee := &models.FeeTemplate{
		ID:         uuid.Must(uuid.NewV7()),
		BuildingID: in.BuildingID,
		Name:       strings.TrimSpace(in.Name),
		Amount:     in.Amount,
		Frequency:  in.Frequency,
		Active:     true,
		CreatedAt:  s.now(),
	}

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if in.BuildingID != nil {
			if _, err := bs.GetBuilding(ctx, *in.BuildingID); err != nil {
				return err
			}
		}
		return bs.CreateFeeTemplate(ctx, fee)
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}
