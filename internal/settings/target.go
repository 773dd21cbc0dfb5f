package settings

import (
	"fmt"

	"github.com/joescharf/ado/internal/models"
)

// TargetKind says where a request's organization and project come from.
type TargetKind int

const (
	// TargetCredential uses the bare credential; only when no project
	// configurations exist.
	TargetCredential TargetKind = iota + 1
	// TargetConfiguration uses a named project configuration.
	TargetConfiguration
)

func (k TargetKind) String() string {
	switch k {
	case TargetCredential:
		return "credential"
	case TargetConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Target is the resolved destination of a request.
type Target struct {
	Kind       TargetKind
	Config     models.ProjectConfig // set when Kind == TargetConfiguration
	Connection models.Connection
}

// Label is a short human-readable description of the target.
func (t Target) Label() string {
	if t.Kind == TargetConfiguration {
		return fmt.Sprintf("%s (%s/%s)", t.Config.Name, t.Connection.Organization, t.Connection.Project)
	}
	return fmt.Sprintf("%s/%s", t.Connection.Organization, t.Connection.Project)
}

// ResolveTarget decides which organization, project, and area path apply.
//
// An explicit configID wins, then the stored selection. With no project
// configurations at all the credential is used as-is. With configurations
// present but none chosen the result is ErrNoTargetSelected.
func (s *Store) ResolveTarget(configID string) (Target, error) {
	return s.ResolveTargetWithToken(configID, "")
}

// ResolveTargetWithToken is ResolveTarget with token standing in for the
// stored one when non-empty. The token is not persisted.
func (s *Store) ResolveTargetWithToken(configID, token string) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred := s.credential
	if token != "" {
		cred.PersonalAccessToken = token
	}
	if !cred.Configured() {
		return Target{}, ErrNotConfigured
	}

	if len(s.configs) == 0 {
		if configID != "" {
			return Target{}, fmt.Errorf("project configuration %w: %s", ErrNotFound, configID)
		}
		return Target{
			Kind: TargetCredential,
			Connection: models.Connection{
				Token:        cred.PersonalAccessToken,
				Organization: cred.Organization,
				Project:      cred.Project,
				AreaPath:     cred.AreaPath,
			},
		}, nil
	}

	id := configID
	if id == "" {
		id = s.selectedID
	}
	if id == "" {
		return Target{}, ErrNoTargetSelected
	}
	i := s.configIndex(id)
	if i < 0 {
		if configID == "" {
			return Target{}, ErrNoTargetSelected
		}
		return Target{}, fmt.Errorf("project configuration %w: %s", ErrNotFound, id)
	}
	c := s.configs[i]
	return Target{
		Kind:   TargetConfiguration,
		Config: c,
		Connection: models.Connection{
			Token:        cred.PersonalAccessToken,
			Organization: c.Organization,
			Project:      c.Project,
			AreaPath:     c.AreaPath,
		},
	}, nil
}
