// Package tenancy maps tenant slugs to the Postgres schema that holds the tenant's data.
//
// Schema names end up in SQL identifier position (search_path, CREATE SCHEMA), where they
// cannot be passed as bind parameters. Resolve is the only way to obtain a Schema and
// Schema.Ident is the only way to render one into SQL text.
package tenancy

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

const (
	// SchemaPrefix is prepended to the slug to build the physical schema name.
	SchemaPrefix = "tenant_"

	// MaxSlugLength is the longest slug accepted by Resolve. Postgres truncates identifiers
	// to 63 bytes, so slugs longer than 63-len(SchemaPrefix) that share that prefix map to
	// the same physical schema; the second CREATE SCHEMA fails as an existing tenant.
	MaxSlugLength = 64
)

// ErrInvalidTenantIdentifier is returned for slugs that do not match the allow-list.
var ErrInvalidTenantIdentifier = errors.New("invalid tenant identifier")

var slugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Schema is a validated tenant schema namespace.
type Schema struct {
	slug string
}

// Resolve validates slug and returns the schema that backs the tenant.
func Resolve(slug string) (Schema, error) {
	if err := ValidateSlug(slug); err != nil {
		return Schema{}, err
	}
	return Schema{slug: slug}, nil
}

// ValidateSlug reports whether slug is usable as a tenant identifier.
func ValidateSlug(slug string) error {
	if len(slug) == 0 || len(slug) > MaxSlugLength {
		return fmt.Errorf("%w: slug must be 1-%d characters", ErrInvalidTenantIdentifier, MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug must match %s", ErrInvalidTenantIdentifier, slugPattern.String())
	}
	return nil
}

// Slug returns the tenant slug the schema was resolved from.
func (s Schema) Slug() string {
	return s.slug
}

// Name returns the unquoted schema name, e.g. tenant_acme.
func (s Schema) Name() string {
	return SchemaPrefix + s.slug
}

// Ident returns the schema name quoted for use as a SQL identifier.
func (s Schema) Ident() string {
	return pgx.Identifier{s.Name()}.Sanitize()
}

// IsZero reports whether s was not produced by Resolve.
func (s Schema) IsZero() bool {
	return s.slug == ""
}

// SearchPath returns the SET LOCAL statement binding a transaction to the schema,
// falling back to public for shared tables.
func (s Schema) SearchPath() string {
	return "SET LOCAL search_path TO " + s.Ident() + ", public"
}
