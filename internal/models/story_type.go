package models

// Activity categorizes a planned task.
type Activity string

const (
	ActivityDevelopment   Activity = "Development"
	ActivityDesign        Activity = "Design"
	ActivityTesting       Activity = "Testing"
	ActivityDocumentation Activity = "Documentation"
	ActivityDeployment    Activity = "Deployment"
	ActivityRequirements  Activity = "Requirements"
)

// Activities lists the valid activities in display order.
var Activities = []Activity{
	ActivityDevelopment,
	ActivityDesign,
	ActivityTesting,
	ActivityDocumentation,
	ActivityDeployment,
	ActivityRequirements,
}

// ParseActivity matches s case-insensitively against Activities.
func ParseActivity(s string) (Activity, bool) {
	for _, a := range Activities {
		if equalFold(string(a), s) {
			return a, true
		}
	}
	return "", false
}

// TaskTemplate is one planned child task of a story type.
type TaskTemplate struct {
	ID       string   `json:"id" yaml:"id,omitempty" toml:"id,omitempty"`
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Activity Activity `json:"activity" yaml:"activity" toml:"activity"`
	Hours    float64  `json:"hours" yaml:"hours" toml:"hours"`
}

// StoryType pairs a work item type with an ordered list of task templates.
type StoryType struct {
	ID           string         `json:"id" yaml:"id,omitempty" toml:"id,omitempty"`
	Name         string         `json:"name" yaml:"name" toml:"name"`
	WorkItemType string         `json:"workItemType" yaml:"work_item_type" toml:"work_item_type"`
	Tasks        []TaskTemplate `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// TotalHours sums the estimates of every task.
func (s StoryType) TotalHours() float64 {
	var total float64
	for _, t := range s.Tasks {
		total += t.Hours
	}
	return total
}
