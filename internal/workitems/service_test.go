package workitems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/batch"
	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/settings"
	"github.com/joescharf/ado/internal/store"
)

// fakeADO is an httptest stand-in for the Azure DevOps work item endpoint.
type fakeADO struct {
	mu     sync.Mutex
	calls  []fakeCall
	failOn string // title that gets a 400
	nextID int
	*httptest.Server
}

type fakeCall struct {
	Path     string
	Auth     string
	Title    string
	ParentID string
	Doc      []map[string]any
}

func newFakeADO(t *testing.T) *fakeADO {
	t.Helper()
	f := &fakeADO{nextID: 1000}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeADO) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var doc []map[string]any
	_ = json.Unmarshal(body, &doc)

	call := fakeCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Doc: doc}
	for _, op := range doc {
		switch op["path"] {
		case "/fields/System.Title":
			call.Title, _ = op["value"].(string)
		case "/relations/-":
			if rel, ok := op["value"].(map[string]any); ok {
				u, _ := rel["url"].(string)
				call.ParentID = u[strings.LastIndex(u, "/")+1:]
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	if f.failOn != "" && call.Title == f.failOn {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("TF401320: Rule Error"))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     id,
		"fields": map[string]any{"System.Title": call.Title, "System.State": "New"},
		"_links": map[string]any{"html": map[string]any{"href": fmt.Sprintf("%s/_workitems/edit/%d", f.URL, id)}},
	})
}

func (f *fakeADO) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Title
	}
	return out
}

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(format string, a ...any) {
	n.successes = append(n.successes, fmt.Sprintf(format, a...))
}

func (n *recordingNotifier) Error(format string, a ...any) {
	n.errors = append(n.errors, fmt.Sprintf(format, a...))
}

func newTestSettings(t *testing.T) *settings.Store {
	t.Helper()
	backend, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, backend.Migrate(context.Background()))
	t.Cleanup(func() { backend.Close() })

	st, err := settings.Open(context.Background(), backend)
	require.NoError(t, err)
	return st
}

func configured(t *testing.T) *settings.Store {
	t.Helper()
	st := newTestSettings(t)
	require.NoError(t, st.SetCredential(context.Background(), models.Credential{
		PersonalAccessToken: "pat", Organization: "contoso", Project: "Proj",
	}))
	return st
}

func newTestService(t *testing.T, st *settings.Store, ado *fakeADO, opts ...Option) (*Service, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	opts = append([]Option{WithBuilder(azure.NewBuilder(ado.URL, "")), WithNotifier(n)}, opts...)
	return NewService(st, azure.NewClient(ado.Client()), opts...), n
}

func TestCreateWorkItem(t *testing.T) {
	ado := newFakeADO(t)
	svc, n := newTestService(t, configured(t), ado)

	res, err := svc.CreateWorkItem(context.Background(), "", models.WorkItemDraft{
		Title:    "  Login page ",
		ItemType: "product backlog item",
	})
	require.NoError(t, err)
	assert.Equal(t, "Login page", res.Title())
	assert.True(t, res.Success)

	require.Len(t, ado.calls, 1)
	call := ado.calls[0]
	assert.Equal(t, "/contoso/Proj/_apis/wit/workitems/$Product Backlog Item", call.Path)
	assert.Equal(t, azure.AuthHeader("pat"), call.Auth)
	// Only the title: description and acceptance criteria are empty, no area path.
	require.Len(t, call.Doc, 1)
	assert.Equal(t, "/fields/System.Title", call.Doc[0]["path"])

	require.Len(t, n.successes, 1)
	assert.Contains(t, n.successes[0], "Login page")
}

func TestCreateWorkItem_Validation(t *testing.T) {
	ado := newFakeADO(t)
	svc, n := newTestService(t, configured(t), ado)
	ctx := context.Background()

	_, err := svc.CreateWorkItem(ctx, "", models.WorkItemDraft{Title: "  ", ItemType: "Bug"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.CreateWorkItem(ctx, "", models.WorkItemDraft{Title: "x", ItemType: "Saga"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, ado.calls)
	assert.Len(t, n.errors, 2)
}

func TestCreateWorkItem_CustomType(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, configured(t), ado, WithWorkItemTypes("Saga", " "))

	assert.Contains(t, svc.WorkItemTypes(), "Saga")
	assert.Len(t, svc.WorkItemTypes(), len(models.WorkItemTypes)+1)

	_, err := svc.CreateWorkItem(context.Background(), "", models.WorkItemDraft{Title: "x", ItemType: "saga"})
	require.NoError(t, err)
	assert.Equal(t, "/contoso/Proj/_apis/wit/workitems/$Saga", ado.calls[0].Path)
}

func TestCreateWorkItem_NotConfigured(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, newTestSettings(t), ado)

	_, err := svc.CreateWorkItem(context.Background(), "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	assert.ErrorIs(t, err, settings.ErrNotConfigured)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Empty(t, ado.calls)
}

func TestCreateWorkItem_TokenOverride(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, configured(t), ado, WithTokenOverride(func() string { return "env-pat" }))

	_, err := svc.CreateWorkItem(context.Background(), "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	require.NoError(t, err)
	assert.Equal(t, azure.AuthHeader("env-pat"), ado.calls[0].Auth)
}

func TestCreateWorkItem_TokenOverrideWithoutStoredToken(t *testing.T) {
	ado := newFakeADO(t)
	st := newTestSettings(t)
	require.NoError(t, st.SetCredential(context.Background(), models.Credential{
		Organization: "contoso", Project: "Proj",
	}))

	bare, _ := newTestService(t, st, ado)
	assert.False(t, bare.Configured())
	_, err := bare.CreateWorkItem(context.Background(), "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	assert.ErrorIs(t, err, settings.ErrNotConfigured)
	assert.Empty(t, ado.calls)

	svc, _ := newTestService(t, st, ado, WithTokenOverride(func() string { return " env-pat " }))
	assert.True(t, svc.Configured())
	assert.Equal(t, "env-pat", svc.Credential().PersonalAccessToken)

	_, err = svc.CreateWorkItem(context.Background(), "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	require.NoError(t, err)
	require.Len(t, ado.calls, 1)
	assert.Equal(t, azure.AuthHeader("env-pat"), ado.calls[0].Auth)
	assert.Empty(t, st.Credential().PersonalAccessToken, "override must not be stored")
}

func TestCreateWorkItem_UsesSelectedConfiguration(t *testing.T) {
	ado := newFakeADO(t)
	st := configured(t)
	ctx := context.Background()
	c, err := st.AddProjectConfig(ctx, models.ProjectConfig{Name: "Mobile", Organization: "fabrikam", Project: "Mobile", AreaPath: `\Team A`})
	require.NoError(t, err)
	svc, _ := newTestService(t, st, ado)

	// Configurations exist but none is selected.
	_, err = svc.CreateWorkItem(ctx, "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	assert.ErrorIs(t, err, settings.ErrNoTargetSelected)
	assert.Empty(t, ado.calls)

	_, err = st.SelectProjectConfig(ctx, c.ID)
	require.NoError(t, err)

	_, err = svc.CreateWorkItem(ctx, "", models.WorkItemDraft{Title: "x", ItemType: "Bug"})
	require.NoError(t, err)
	require.Len(t, ado.calls, 1)
	assert.Equal(t, "/fabrikam/Mobile/_apis/wit/workitems/$Bug", ado.calls[0].Path)
	assert.Equal(t, "/fields/System.AreaPath", ado.calls[0].Doc[1]["path"])
	assert.Equal(t, `Mobile\Team A`, ado.calls[0].Doc[1]["value"])
}

func TestCreateBulk_SkipsBlankTitlesInOrder(t *testing.T) {
	ado := newFakeADO(t)
	svc, n := newTestService(t, configured(t), ado)

	results, err := svc.CreateBulk(context.Background(), BulkInput{
		ItemType: models.WorkItemTypeProductBacklogItem,
		Titles:   []string{"A", "B", ""},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"A", "B"}, ado.titles())
	for _, c := range ado.calls {
		assert.Empty(t, c.ParentID)
	}
	assert.Equal(t, []string{"Successfully created 2 work items"}, n.successes)
}

func TestCreateBulk_StopsAfterFailure(t *testing.T) {
	ado := newFakeADO(t)
	ado.failOn = "B"
	svc, n := newTestService(t, configured(t), ado)

	results, err := svc.CreateBulk(context.Background(), BulkInput{
		ItemType: models.WorkItemTypeBug,
		Titles:   []string{"A\nB\nC"},
	})
	require.Error(t, err)
	assert.Equal(t, KindRemote, KindOf(err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Contains(t, Message(err), "TF401320: Rule Error")

	var be *batch.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)

	// A was created and stays created; C was never attempted.
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Title())
	assert.Equal(t, []string{"A", "B"}, ado.titles())
	require.Len(t, n.errors, 1)
	assert.Contains(t, n.errors[0], "Failed to create work items")
}

func TestCreateBulk_WithParent(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, configured(t), ado)

	_, err := svc.CreateBulk(context.Background(), BulkInput{ItemType: "Task", ParentID: " 77 ", Titles: []string{"A", "B"}})
	require.NoError(t, err)
	for _, c := range ado.calls {
		assert.Equal(t, "77", c.ParentID)
	}
}

func TestCreateBulk_Validation(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, configured(t), ado)
	ctx := context.Background()

	_, err := svc.CreateBulk(ctx, BulkInput{ItemType: "Bug", Titles: []string{" \n "}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateBulk(ctx, BulkInput{ItemType: "Bug", ParentID: "abc", Titles: []string{"A"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateBulk(ctx, BulkInput{ItemType: "Nope", Titles: []string{"A"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, ado.calls)
}

func TestCreateBulk_Parallel(t *testing.T) {
	ado := newFakeADO(t)
	svc, _ := newTestService(t, configured(t), ado, WithPolicy(batch.Parallel, 2))
	assert.Equal(t, batch.Parallel, svc.Policy())

	results, err := svc.CreateBulk(context.Background(), BulkInput{ItemType: "Bug", Titles: []string{"A", "B", "C", "D"}})
	require.NoError(t, err)
	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.Title()
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, ado.titles())
}

func seedStoryType(t *testing.T, st *settings.Store) models.StoryType {
	t.Helper()
	ctx := context.Background()
	s, err := st.AddStoryType(ctx, models.StoryType{Name: "Feature work"})
	require.NoError(t, err)
	_, err = st.AddTask(ctx, s.ID, models.TaskTemplate{Name: "Design", Activity: models.ActivityDesign, Hours: 2})
	require.NoError(t, err)
	_, err = st.AddTask(ctx, s.ID, models.TaskTemplate{Name: "Build", Hours: 5})
	require.NoError(t, err)
	s, err = st.StoryType(s.ID)
	require.NoError(t, err)
	return s
}

func TestApplyStoryType_FourTasksAcrossTwoParents(t *testing.T) {
	ado := newFakeADO(t)
	st := configured(t)
	storyType := seedStoryType(t, st)
	svc, n := newTestService(t, st, ado)

	results, err := svc.ApplyStoryType(context.Background(), ApplyInput{
		StoryTypeID: storyType.ID,
		TargetIDs:   []string{"10", "20"},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	got := make([]string, len(ado.calls))
	for i, c := range ado.calls {
		got[i] = c.ParentID + ":" + c.Title
		assert.Equal(t, "/contoso/Proj/_apis/wit/workitems/$Task", c.Path)
	}
	assert.Equal(t, []string{"10:Design", "10:Build", "20:Design", "20:Build"}, got)
	assert.Equal(t, []string{"Applied 2 tasks to 2 work items"}, n.successes)
}

func TestApplyStoryType_ByNameWithMixedIDs(t *testing.T) {
	ado := newFakeADO(t)
	st := configured(t)
	seedStoryType(t, st)
	svc, _ := newTestService(t, st, ado)

	plan, err := svc.PlanApply(ApplyInput{StoryTypeID: "feature WORK", TargetIDs: []string{"abc", "30", "", "30"}})
	require.NoError(t, err)
	assert.Equal(t, []int{30}, plan.ParentIDs)
	assert.Len(t, plan.Requests, 2)
	assert.Empty(t, ado.calls, "planning sends nothing")
}

func TestApplyStoryType_Validation(t *testing.T) {
	ado := newFakeADO(t)
	st := configured(t)
	storyType := seedStoryType(t, st)
	svc, _ := newTestService(t, st, ado)
	ctx := context.Background()

	_, err := svc.ApplyStoryType(ctx, ApplyInput{StoryTypeID: "missing", TargetIDs: []string{"1"}})
	assert.ErrorIs(t, err, settings.ErrNotFound)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.ApplyStoryType(ctx, ApplyInput{StoryTypeID: "", TargetIDs: []string{"1"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ApplyStoryType(ctx, ApplyInput{StoryTypeID: storyType.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ApplyStoryType(ctx, ApplyInput{StoryTypeID: storyType.ID, TargetIDs: []string{"x", "y"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "no valid work item IDs")

	assert.Empty(t, ado.calls)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindConfiguration, KindOf(settings.ErrNoTargetSelected))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("wrap: %w", settings.ErrInvalid)))
	assert.Equal(t, KindRemote, KindOf(&azure.RemoteError{StatusCode: 500, Message: "boom"}))
	assert.Equal(t, KindUnknown, KindOf(errors.New("dial tcp: refused")))
}

type emptyErr struct{}

func (emptyErr) Error() string { return "" }

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "unknown error occurred", Message(emptyErr{}))
}
