package tenancy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_validSlugs(t *testing.T) {
	tests := []struct {
		slug     string
		expected string
	}{
		{slug: "acme", expected: "tenant_acme"},
		{slug: "a", expected: "tenant_a"},
		{slug: "north-tower_2", expected: "tenant_north-tower_2"},
		{slug: "0123456789", expected: "tenant_0123456789"},
		{slug: strings.Repeat("x", MaxSlugLength), expected: "tenant_" + strings.Repeat("x", MaxSlugLength)},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			schema, err := Resolve(tt.slug)
			require.NoError(t, err)
			require.Equal(t, tt.expected, schema.Name())
			require.Equal(t, tt.slug, schema.Slug())

			again, err := Resolve(tt.slug)
			require.NoError(t, err)
			require.Equal(t, schema, again)
		})
	}
}

func TestResolve_invalidSlugs(t *testing.T) {
	tests := []struct {
		name string
		slug string
	}{
		{name: "empty", slug: ""},
		{name: "uppercase", slug: "Acme"},
		{name: "whitespace", slug: "ac me"},
		{name: "trailing newline", slug: "acme\n"},
		{name: "quote", slug: `acme"; DROP SCHEMA public; --`},
		{name: "dot", slug: "acme.public"},
		{name: "semicolon", slug: "acme;"},
		{name: "unicode", slug: "acmé"},
		{name: "too long", slug: strings.Repeat("x", MaxSlugLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, err := Resolve(tt.slug)
			require.ErrorIs(t, err, ErrInvalidTenantIdentifier)
			require.True(t, schema.IsZero())
		})
	}
}

func TestSchema_Ident(t *testing.T) {
	schema, err := Resolve("north-tower")
	require.NoError(t, err)
	require.Equal(t, `"tenant_north-tower"`, schema.Ident())
	require.Equal(t, `SET LOCAL search_path TO "tenant_north-tower", public`, schema.SearchPath())
}
