package models

// Credential is the active connection: a personal access token paired with a
// target coordinate. The token is opaque and never parsed.
type Credential struct {
	PersonalAccessToken string `json:"personalAccessToken"`
	Organization        string `json:"organization"`
	Project             string `json:"project"`
	AreaPath            string `json:"areaPath,omitempty"`
}

// Configured reports whether token, organization, and project are all set.
func (c Credential) Configured() bool {
	return c.PersonalAccessToken != "" && c.Organization != "" && c.Project != ""
}

// ProjectConfig is a named, reusable connection target.
type ProjectConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Project      string `json:"project"`
	AreaPath     string `json:"areaPath,omitempty"`
}

// Connection is everything needed to address one project: the credential's
// token plus the organization/project/area path that apply to a request.
type Connection struct {
	Token        string
	Organization string
	Project      string
	AreaPath     string
}
