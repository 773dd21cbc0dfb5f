package models

import "strings"

// Built-in work item type names.
const (
	WorkItemTypeEpic               = "Epic"
	WorkItemTypeFeature            = "Feature"
	WorkItemTypeProductBacklogItem = "Product Backlog Item"
	WorkItemTypeBug                = "Bug"
	WorkItemTypeTask               = "Task"
	WorkItemTypeUserStory          = "User Story"
)

// WorkItemTypes is the built-in allow-list presented to users. Organizations
// with custom process templates extend it through configuration.
var WorkItemTypes = []string{
	WorkItemTypeEpic,
	WorkItemTypeFeature,
	WorkItemTypeProductBacklogItem,
	WorkItemTypeBug,
	WorkItemTypeTask,
	WorkItemTypeUserStory,
}

// WorkItemDraft is the input of a single create operation. It is never persisted.
type WorkItemDraft struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	AcceptanceCriteria string `json:"acceptanceCriteria"`
	ItemType           string `json:"itemType"`
	ParentID           int    `json:"parentId,omitempty"` // 0 = no parent
}

// CreationResult is one work item created on the server.
type CreationResult struct {
	ID      int               `json:"id"`
	URL     string            `json:"url"`
	Fields  map[string]string `json:"fields"`
	Success bool              `json:"success"`
}

// Title returns the created item's title from the fields snapshot.
func (r *CreationResult) Title() string {
	return r.Fields["System.Title"]
}

// State returns the created item's state from the fields snapshot.
func (r *CreationResult) State() string {
	return r.Fields["System.State"]
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
