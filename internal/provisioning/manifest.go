package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/tenancy"
	"gopkg.in/yaml.v3"
)

// Manifest lists the tenants an installation should have.
type Manifest struct {
	Tenants []ManifestTenant `yaml:"tenants"`
}

// ManifestTenant is one tenant entry of a manifest.
type ManifestTenant struct {
	Slug     string    `yaml:"slug"`
	Name     string    `yaml:"name"`
	Owner    uuid.UUID `yaml:"owner"`
	Logo     string    `yaml:"logo,omitempty"`
	Address  string    `yaml:"address,omitempty"`
	Currency string    `yaml:"currency,omitempty"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Tenants))
	for i, t := range m.Tenants {
		if err := tenancy.ValidateSlug(t.Slug); err != nil {
			return nil, fmt.Errorf("tenant %d: %w", i, err)
		}
		if seen[t.Slug] {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrInvalidTenant, t.Slug)
		}
		seen[t.Slug] = true

		if t.Name == "" {
			return nil, fmt.Errorf("%w: tenant %q has no name", ErrInvalidTenant, t.Slug)
		}
		if t.Owner == uuid.Nil {
			return nil, fmt.Errorf("%w: tenant %q has no owner", ErrInvalidTenant, t.Slug)
		}
	}

	return &m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return ParseManifest(f)
}

// SyncResult reports what SyncManifest did per tenant slug.
type SyncResult struct {
	Created  []string
	Repaired []string
	Ready    []string
}

// SyncManifest provisions every manifest tenant that does not exist yet and repairs the
// ones that exist but are not ready. Existing tenants are never modified otherwise.
// A failing tenant does not stop the others; all failures are returned together.
func (s *Service) SyncManifest(ctx context.Context, m *Manifest) (*SyncResult, error) {
	result := &SyncResult{}
	var errs []error

	for _, t := range m.Tenants {
		existing, err := s.tenants.GetBySlug(ctx, t.Slug)
		switch {
		case errors.Is(err, store.ErrTenantNotFound):
			if _, err := s.CreateTenant(ctx, NewTenant{
				Name:        t.Name,
				Slug:        t.Slug,
				OwnerUserID: t.Owner,
				Logo:        t.Logo,
				Address:     t.Address,
				Currency:    t.Currency,
			}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Slug, err))
				continue
			}
			result.Created = append(result.Created, t.Slug)

		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", t.Slug, err))

		case existing.State != models.TenantStateReady:
			if _, err := s.Repair(ctx, t.Slug, t.Owner); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Slug, err))
				continue
			}
			result.Repaired = append(result.Repaired, t.Slug)

		default:
			result.Ready = append(result.Ready, t.Slug)
		}
	}

	log.Info().
		Int("created", len(result.Created)).
		Int("repaired", len(result.Repaired)).
		Int("ready", len(result.Ready)).
		Int("failures", len(errs)).
		Msg("Tenant manifest synced")

	return result, errors.Join(errs...)
}
