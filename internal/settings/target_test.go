package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ado/internal/models"
)

func TestResolveTarget_NotConfigured(t *testing.T) {
	s, _ := newTestSettings(t)

	_, err := s.ResolveTarget("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveTarget_CredentialWhenNoConfigs(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()
	require.NoError(t, s.SetCredential(ctx, models.Credential{PersonalAccessToken: "pat", Organization: "contoso", Project: "Web", AreaPath: `\Team`}))

	target, err := s.ResolveTarget("")
	require.NoError(t, err)
	assert.Equal(t, TargetCredential, target.Kind)
	assert.Equal(t, models.Connection{Token: "pat", Organization: "contoso", Project: "Web", AreaPath: `\Team`}, target.Connection)
	assert.Equal(t, "contoso/Web", target.Label())

	_, err = s.ResolveTarget("anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveTargetWithToken(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()
	require.NoError(t, s.SetCredential(ctx, models.Credential{Organization: "contoso", Project: "Web"}))

	// No stored token and no override.
	_, err := s.ResolveTargetWithToken("", "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	target, err := s.ResolveTargetWithToken("", "env-pat")
	require.NoError(t, err)
	assert.Equal(t, "env-pat", target.Connection.Token)
	assert.Equal(t, "contoso/Web", target.Label())

	// The override is never written back.
	assert.Empty(t, s.Credential().PersonalAccessToken)
	assert.False(t, s.IsConfigured())

	// A stored token is replaced by the override.
	require.NoError(t, s.SetCredential(ctx, models.Credential{PersonalAccessToken: "pat", Organization: "contoso", Project: "Web"}))
	target, err = s.ResolveTargetWithToken("", "env-pat")
	require.NoError(t, err)
	assert.Equal(t, "env-pat", target.Connection.Token)
}

func TestResolveTarget_ConfigsExistButNoneSelected(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()
	require.NoError(t, s.SetCredential(ctx, models.Credential{PersonalAccessToken: "pat", Organization: "contoso", Project: "Web"}))
	_, err := s.AddProjectConfig(ctx, models.ProjectConfig{Name: "Mobile", Organization: "fabrikam", Project: "Mobile"})
	require.NoError(t, err)

	_, err = s.ResolveTarget("")
	assert.ErrorIs(t, err, ErrNoTargetSelected)
}

func TestResolveTarget_ExplicitAndSelected(t *testing.T) {
	s, _ := newTestSettings(t)
	ctx := context.Background()
	require.NoError(t, s.SetCredential(ctx, models.Credential{PersonalAccessToken: "pat", Organization: "contoso", Project: "Web"}))
	a, err := s.AddProjectConfig(ctx, models.ProjectConfig{Name: "A", Organization: "fabrikam", Project: "Alpha", AreaPath: `\Red`})
	require.NoError(t, err)
	b, err := s.AddProjectConfig(ctx, models.ProjectConfig{Name: "B", Organization: "fabrikam", Project: "Beta"})
	require.NoError(t, err)

	_, err = s.SelectProjectConfig(ctx, a.ID)
	require.NoError(t, err)

	target, err := s.ResolveTarget("")
	require.NoError(t, err)
	assert.Equal(t, TargetConfiguration, target.Kind)
	assert.Equal(t, a.ID, target.Config.ID)
	assert.Equal(t, "Alpha", target.Connection.Project)
	assert.Equal(t, `\Red`, target.Connection.AreaPath)
	assert.Equal(t, "pat", target.Connection.Token)

	// Explicit id overrides the selection
	target, err = s.ResolveTarget(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beta", target.Connection.Project)
	assert.Equal(t, "B (fabrikam/Beta)", target.Label())

	_, err = s.ResolveTarget("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTargetKind_String(t *testing.T) {
	assert.Equal(t, "credential", TargetCredential.String())
	assert.Equal(t, "configuration", TargetConfiguration.String())
	assert.Equal(t, "unknown", TargetKind(0).String())
}
