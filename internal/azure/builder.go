// Package azure builds and sends Azure DevOps work item requests.
//
// Building is pure: a Builder turns a connection plus field values into a
// Request carrying the endpoint, the auth header, and the JSON patch
// document. Client performs the I/O.
package azure

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joescharf/ado/internal/models"
)

const (
	DefaultBaseURL    = "https://dev.azure.com"
	DefaultAPIVersion = "6.0"

	// ContentTypePatch is the media type Azure DevOps expects for work item creation.
	ContentTypePatch = "application/json-patch+json"

	// RelHierarchyReverse links a child to its parent.
	RelHierarchyReverse = "System.LinkTypes.Hierarchy-Reverse"
)

// Field reference names.
const (
	FieldTitle              = "System.Title"
	FieldDescription        = "System.Description"
	FieldState              = "System.State"
	FieldAreaPath           = "System.AreaPath"
	FieldAcceptanceCriteria = "Microsoft.VSTS.Common.AcceptanceCriteria"
	FieldActivity           = "Microsoft.VSTS.Common.Activity"
	FieldOriginalEstimate   = "Microsoft.VSTS.Scheduling.OriginalEstimate"
)

// Operation is one entry of a JSON patch document.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Relation is the value of a /relations/- operation.
type Relation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// Request is a fully built create-work-item call.
type Request struct {
	Method        string      `json:"method"`
	URL           string      `json:"url"`
	Authorization string      `json:"-"`
	WorkItemType  string      `json:"workItemType"`
	ParentID      int         `json:"parentId,omitempty"`
	Document      []Operation `json:"document"`
}

// Title returns the value of the title operation, if any.
func (r Request) Title() string {
	for _, op := range r.Document {
		if op.Path == fieldPath(FieldTitle) {
			if s, ok := op.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Builder constructs requests against one Azure DevOps host.
type Builder struct {
	BaseURL    string
	APIVersion string
}

// NewBuilder returns a Builder, defaulting empty values.
func NewBuilder(baseURL, apiVersion string) Builder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return Builder{BaseURL: strings.TrimRight(baseURL, "/"), APIVersion: apiVersion}
}

// AuthHeader returns the basic-auth header value for a personal access
// token: empty username, token as password.
func AuthHeader(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token))
}

// AreaPath joins the project and a configured area path. A path that does
// not start with a backslash gets one inserted.
func AreaPath(project, path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, `\`) {
		path = `\` + path
	}
	return project + path
}

// Endpoint returns the create URL for a work item type.
func (b Builder) Endpoint(org, project, workItemType string) string {
	return fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%s?api-version=%s",
		b.BaseURL,
		url.PathEscape(org),
		url.PathEscape(project),
		url.PathEscape("$"+workItemType),
		b.APIVersion,
	)
}

// WorkItemURL returns the canonical API URL of an existing work item.
func (b Builder) WorkItemURL(org, project string, id int) string {
	return fmt.Sprintf("%s/%s/%s/_apis/wit/workItems/%d",
		b.BaseURL, url.PathEscape(org), url.PathEscape(project), id)
}

func fieldPath(field string) string {
	return "/fields/" + field
}

func addField(field string, value any) Operation {
	return Operation{Op: "add", Path: fieldPath(field), Value: value}
}

func (b Builder) parentLink(conn models.Connection, parentID int) Operation {
	return Operation{
		Op:   "add",
		Path: "/relations/-",
		Value: Relation{
			Rel: RelHierarchyReverse,
			URL: b.WorkItemURL(conn.Organization, conn.Project, parentID),
		},
	}
}

// WorkItem builds the request creating draft in the connection's project.
// Description and acceptance criteria are sent only when non-empty.
func (b Builder) WorkItem(conn models.Connection, draft models.WorkItemDraft) Request {
	doc := []Operation{addField(FieldTitle, draft.Title)}
	if draft.Description != "" {
		doc = append(doc, addField(FieldDescription, draft.Description))
	}
	if draft.AcceptanceCriteria != "" {
		doc = append(doc, addField(FieldAcceptanceCriteria, draft.AcceptanceCriteria))
	}
	if area := AreaPath(conn.Project, conn.AreaPath); area != "" {
		doc = append(doc, addField(FieldAreaPath, area))
	}
	if draft.ParentID > 0 {
		doc = append(doc, b.parentLink(conn, draft.ParentID))
	}

	return Request{
		Method:        "POST",
		URL:           b.Endpoint(conn.Organization, conn.Project, draft.ItemType),
		Authorization: AuthHeader(conn.Token),
		WorkItemType:  draft.ItemType,
		ParentID:      draft.ParentID,
		Document:      doc,
	}
}

// Task builds the request creating one child task of parentID from a template.
func (b Builder) Task(conn models.Connection, parentID int, task models.TaskTemplate) Request {
	doc := []Operation{
		addField(FieldTitle, task.Name),
		addField(FieldDescription, ""),
	}
	if task.Activity != "" {
		doc = append(doc, addField(FieldActivity, string(task.Activity)))
	}
	if task.Hours > 0 {
		doc = append(doc, addField(FieldOriginalEstimate, FormatHours(task.Hours)))
	}
	if area := AreaPath(conn.Project, conn.AreaPath); area != "" {
		doc = append(doc, addField(FieldAreaPath, area))
	}
	doc = append(doc, b.parentLink(conn, parentID))

	return Request{
		Method:        "POST",
		URL:           b.Endpoint(conn.Organization, conn.Project, models.WorkItemTypeTask),
		Authorization: AuthHeader(conn.Token),
		WorkItemType:  models.WorkItemTypeTask,
		ParentID:      parentID,
		Document:      doc,
	}
}

// FormatHours renders an estimate with the shortest exact decimal: 2, 0.5.
func FormatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
