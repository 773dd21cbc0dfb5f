package azure

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ado/internal/models"
)

var testConn = models.Connection{Token: "secret", Organization: "contoso", Project: "Proj"}

func paths(doc []Operation) []string {
	out := make([]string, len(doc))
	for i, op := range doc {
		out[i] = op.Path
	}
	return out
}

func valueAt(t *testing.T, doc []Operation, path string) any {
	t.Helper()
	for _, op := range doc {
		if op.Path == path {
			return op.Value
		}
	}
	t.Fatalf("no operation at %s", path)
	return nil
}

func TestAuthHeader(t *testing.T) {
	h := AuthHeader("secret")
	require.Contains(t, h, "Basic ")
	raw, err := base64.StdEncoding.DecodeString(h[len("Basic "):])
	require.NoError(t, err)
	assert.Equal(t, ":secret", string(raw))
}

func TestAreaPath(t *testing.T) {
	assert.Equal(t, `Proj\Team A`, AreaPath("Proj", `\Team A`))
	assert.Equal(t, `Proj\Team A\Sub`, AreaPath("Proj", `\Team A\Sub`))
	assert.Equal(t, `Proj\Team A`, AreaPath("Proj", `Team A`))
	assert.Equal(t, "", AreaPath("Proj", ""))
}

func TestEndpoint(t *testing.T) {
	b := NewBuilder("", "")
	assert.Equal(t,
		"https://dev.azure.com/contoso/Proj/_apis/wit/workitems/$Product%20Backlog%20Item?api-version=6.0",
		b.Endpoint("contoso", "Proj", "Product Backlog Item"))

	b = NewBuilder("http://localhost:9999/", "7.1")
	assert.Equal(t,
		"http://localhost:9999/contoso/My%20Proj/_apis/wit/workitems/$Bug?api-version=7.1",
		b.Endpoint("contoso", "My Proj", "Bug"))
}

func TestWorkItem_TitleOnly(t *testing.T) {
	b := NewBuilder("", "")
	req := b.WorkItem(testConn, models.WorkItemDraft{Title: "Login page", ItemType: models.WorkItemTypeFeature})

	assert.Equal(t, []string{"/fields/System.Title"}, paths(req.Document))
	assert.Equal(t, "Login page", req.Title())
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, AuthHeader("secret"), req.Authorization)
	assert.Equal(t, models.WorkItemTypeFeature, req.WorkItemType)
	assert.Contains(t, req.URL, "/_apis/wit/workitems/$Feature?")
}

func TestWorkItem_TitleAndAreaPath(t *testing.T) {
	b := NewBuilder("", "")
	conn := testConn
	conn.AreaPath = `\Team A`

	req := b.WorkItem(conn, models.WorkItemDraft{Title: "Login page", ItemType: models.WorkItemTypeBug})

	assert.Equal(t, []string{"/fields/System.Title", "/fields/System.AreaPath"}, paths(req.Document))
	assert.Equal(t, `Proj\Team A`, valueAt(t, req.Document, "/fields/System.AreaPath"))
}

func TestWorkItem_AllFieldsAndParent(t *testing.T) {
	b := NewBuilder("", "")
	req := b.WorkItem(testConn, models.WorkItemDraft{
		Title:              "Checkout",
		Description:        "As a user...",
		AcceptanceCriteria: "Given...",
		ItemType:           models.WorkItemTypeProductBacklogItem,
		ParentID:           42,
	})

	assert.Equal(t, []string{
		"/fields/System.Title",
		"/fields/System.Description",
		"/fields/Microsoft.VSTS.Common.AcceptanceCriteria",
		"/relations/-",
	}, paths(req.Document))
	assert.Equal(t, 42, req.ParentID)

	rel, ok := valueAt(t, req.Document, "/relations/-").(Relation)
	require.True(t, ok)
	assert.Equal(t, RelHierarchyReverse, rel.Rel)
	assert.Equal(t, "https://dev.azure.com/contoso/Proj/_apis/wit/workItems/42", rel.URL)
}

func TestTask(t *testing.T) {
	b := NewBuilder("", "")
	conn := testConn
	conn.AreaPath = `\Team A`

	req := b.Task(conn, 10, models.TaskTemplate{Name: "Design", Activity: models.ActivityDesign, Hours: 2.5})

	assert.Equal(t, []string{
		"/fields/System.Title",
		"/fields/System.Description",
		"/fields/Microsoft.VSTS.Common.Activity",
		"/fields/Microsoft.VSTS.Scheduling.OriginalEstimate",
		"/fields/System.AreaPath",
		"/relations/-",
	}, paths(req.Document))
	assert.Equal(t, "Design", valueAt(t, req.Document, "/fields/System.Title"))
	assert.Equal(t, "", valueAt(t, req.Document, "/fields/System.Description"))
	assert.Equal(t, "Design", valueAt(t, req.Document, "/fields/Microsoft.VSTS.Common.Activity"))
	assert.Equal(t, "2.5", valueAt(t, req.Document, "/fields/Microsoft.VSTS.Scheduling.OriginalEstimate"))
	assert.Equal(t, models.WorkItemTypeTask, req.WorkItemType)
	assert.Equal(t, 10, req.ParentID)
	assert.Contains(t, req.URL, "/_apis/wit/workitems/$Task?")
}

func TestTask_OmitsZeroHoursAndEmptyActivity(t *testing.T) {
	b := NewBuilder("", "")
	req := b.Task(testConn, 7, models.TaskTemplate{Name: "Standup"})

	assert.Equal(t, []string{
		"/fields/System.Title",
		"/fields/System.Description",
		"/relations/-",
	}, paths(req.Document))
}

func TestFormatHours(t *testing.T) {
	assert.Equal(t, "2", FormatHours(2))
	assert.Equal(t, "0.5", FormatHours(0.5))
	assert.Equal(t, "12.25", FormatHours(12.25))
}

func TestRequest_DocumentWireShape(t *testing.T) {
	b := NewBuilder("", "")
	req := b.Task(testConn, 10, models.TaskTemplate{Name: "Build", Hours: 5})

	data, err := json.Marshal(req.Document)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"op":"add","path":"/fields/System.Title","value":"Build"},
		{"op":"add","path":"/fields/System.Description","value":""},
		{"op":"add","path":"/fields/Microsoft.VSTS.Scheduling.OriginalEstimate","value":"5"},
		{"op":"add","path":"/relations/-","value":{"rel":"System.LinkTypes.Hierarchy-Reverse","url":"https://dev.azure.com/contoso/Proj/_apis/wit/workItems/10"}}
	]`, string(data))
}
