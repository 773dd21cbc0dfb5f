// Package workitems implements the three user operations: create one work
// item, create many from a title list, and apply a story type's tasks to
// existing work items.
package workitems

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/batch"
	"github.com/joescharf/ado/internal/breakdown"
	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/settings"
)

// Creator sends one built request.
type Creator interface {
	Create(ctx context.Context, req azure.Request) (*models.CreationResult, error)
}

// Notifier receives user-facing outcome messages.
type Notifier interface {
	Success(format string, a ...any)
	Error(format string, a ...any)
}

type nopNotifier struct{}

func (nopNotifier) Success(string, ...any) {}
func (nopNotifier) Error(string, ...any)   {}

// Service resolves targets, validates input, builds requests, and runs them.
type Service struct {
	settings    *settings.Store
	builder     azure.Builder
	client      Creator
	policy      batch.Policy
	maxParallel int
	notify      Notifier
	extraTypes  []string
	tokenFunc   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithBuilder sets the request builder (base URL, API version).
func WithBuilder(b azure.Builder) Option { return func(s *Service) { s.builder = b } }

// WithPolicy sets the batch policy used by bulk creation and story-type application.
func WithPolicy(p batch.Policy, maxParallel int) Option {
	return func(s *Service) {
		s.policy = p
		s.maxParallel = maxParallel
	}
}

// WithNotifier sets where success and failure messages go.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notify = n } }

// WithWorkItemTypes adds organization-specific type names to the allow-list.
func WithWorkItemTypes(types ...string) Option {
	return func(s *Service) { s.extraTypes = append(s.extraTypes, types...) }
}

// WithTokenOverride replaces the stored token when fn returns non-empty.
func WithTokenOverride(fn func() string) Option { return func(s *Service) { s.tokenFunc = fn } }

// NewService creates a Service.
func NewService(st *settings.Store, client Creator, opts ...Option) *Service {
	s := &Service{
		settings: st,
		builder:  azure.NewBuilder("", ""),
		client:   client,
		policy:   batch.Sequential,
		notify:   nopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the batch policy in effect.
func (s *Service) Policy() batch.Policy { return s.policy }

// WorkItemTypes returns the built-in types followed by configured extras.
func (s *Service) WorkItemTypes() []string {
	types := slices.Clone(models.WorkItemTypes)
	for _, t := range s.extraTypes {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types
}

func (s *Service) checkType(itemType string) (string, error) {
	for _, t := range s.WorkItemTypes() {
		if strings.EqualFold(t, strings.TrimSpace(itemType)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown work item type %q", ErrInvalidInput, itemType)
}

func (s *Service) overrideToken() string {
	if s.tokenFunc == nil {
		return ""
	}
	return strings.TrimSpace(s.tokenFunc())
}

// Credential returns the stored credential with any token override applied.
func (s *Service) Credential() models.Credential {
	c := s.settings.Credential()
	if tok := s.overrideToken(); tok != "" {
		c.PersonalAccessToken = tok
	}
	return c
}

// Configured reports whether work items can be sent: token, organization,
// and project are set, counting the token override.
func (s *Service) Configured() bool {
	return s.Credential().Configured()
}

// Target resolves the destination for configID.
func (s *Service) Target(configID string) (settings.Target, error) {
	return s.settings.ResolveTargetWithToken(configID, s.overrideToken())
}

// --- Single work item ---

// PlanWorkItem validates draft and builds its request without sending it.
func (s *Service) PlanWorkItem(configID string, draft models.WorkItemDraft) (azure.Request, settings.Target, error) {
	target, err := s.Target(configID)
	if err != nil {
		return azure.Request{}, settings.Target{}, err
	}
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return azure.Request{}, target, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if draft.ParentID < 0 {
		return azure.Request{}, target, fmt.Errorf("%w: parent id must be positive", ErrInvalidInput)
	}
	itemType, err := s.checkType(draft.ItemType)
	if err != nil {
		return azure.Request{}, target, err
	}
	draft.ItemType = itemType
	return s.builder.WorkItem(target.Connection, draft), target, nil
}

// CreateWorkItem creates a single work item.
func (s *Service) CreateWorkItem(ctx context.Context, configID string, draft models.WorkItemDraft) (*models.CreationResult, error) {
	req, _, err := s.PlanWorkItem(configID, draft)
	if err != nil {
		s.notify.Error("Failed to create work item: %s", Message(err))
		return nil, err
	}
	res, err := s.client.Create(ctx, req)
	if err != nil {
		s.notify.Error("Failed to create work item: %s", Message(err))
		return nil, err
	}
	s.notify.Success("Created %s #%d: %s", req.WorkItemType, res.ID, req.Title())
	return res, nil
}

// --- Bulk ---

// BulkInput is a title list to create under one optional parent.
type BulkInput struct {
	ConfigID string   `json:"configId"`
	ItemType string   `json:"itemType"`
	ParentID string   `json:"parentId"` // empty = no parent
	Titles   []string `json:"titles"`   // each entry may hold several newline-separated titles
}

// PlanBulk validates in and builds one request per non-blank title.
func (s *Service) PlanBulk(in BulkInput) ([]azure.Request, settings.Target, error) {
	target, err := s.Target(in.ConfigID)
	if err != nil {
		return nil, settings.Target{}, err
	}

	titles := breakdown.SplitTitles(strings.Join(in.Titles, "\n"))
	if len(titles) == 0 {
		return nil, target, fmt.Errorf("%w: enter at least one title", ErrInvalidInput)
	}

	var parentID int
	if p := strings.TrimSpace(in.ParentID); p != "" {
		id, ok := breakdown.ParseID(p)
		if !ok {
			return nil, target, fmt.Errorf("%w: parent id %q is not a positive integer", ErrInvalidInput, in.ParentID)
		}
		parentID = id
	}

	itemType, err := s.checkType(in.ItemType)
	if err != nil {
		return nil, target, err
	}

	reqs := make([]azure.Request, len(titles))
	for i, title := range titles {
		reqs[i] = s.builder.WorkItem(target.Connection, models.WorkItemDraft{
			Title:    title,
			ItemType: itemType,
			ParentID: parentID,
		})
	}
	return reqs, target, nil
}

// CreateBulk creates one work item per title under the configured policy.
func (s *Service) CreateBulk(ctx context.Context, in BulkInput) ([]*models.CreationResult, error) {
	reqs, _, err := s.PlanBulk(in)
	if err != nil {
		s.notify.Error("Failed to create work items: %s", Message(err))
		return nil, err
	}
	results, err := s.run(ctx, reqs)
	if err != nil {
		s.notify.Error("Failed to create work items: %s", Message(err))
		return results, err
	}
	s.notify.Success("Successfully created %d work items", len(results))
	return results, nil
}

// --- Story type application ---

// ApplyInput names a story type and the work items to break down.
type ApplyInput struct {
	ConfigID    string   `json:"configId"`
	StoryTypeID string   `json:"storyTypeId"` // id or name
	TargetIDs   []string `json:"targetIds"`
}

// ApplyPlan is the expansion of a story type across target work items.
type ApplyPlan struct {
	Target    settings.Target
	StoryType models.StoryType
	ParentIDs []int
	Units     []breakdown.Unit
	Requests  []azure.Request
}

// PlanApply validates in and builds one task request per (parent, task).
func (s *Service) PlanApply(in ApplyInput) (*ApplyPlan, error) {
	target, err := s.Target(in.ConfigID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.StoryTypeID) == "" {
		return nil, fmt.Errorf("%w: select a story type", ErrInvalidInput)
	}
	st, err := s.settings.FindStoryType(in.StoryTypeID)
	if err != nil {
		return nil, err
	}
	if len(in.TargetIDs) == 0 {
		return nil, fmt.Errorf("%w: enter at least one work item ID", ErrInvalidInput)
	}
	units, ids, err := breakdown.Plan(st, in.TargetIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	reqs := make([]azure.Request, len(units))
	for i, u := range units {
		reqs[i] = s.builder.Task(target.Connection, u.ParentID, u.Task)
	}
	return &ApplyPlan{Target: target, StoryType: st, ParentIDs: ids, Units: units, Requests: reqs}, nil
}

// ApplyStoryType creates every task of a story type under every target work item.
func (s *Service) ApplyStoryType(ctx context.Context, in ApplyInput) ([]*models.CreationResult, error) {
	plan, err := s.PlanApply(in)
	if err != nil {
		s.notify.Error("Failed to create tasks: %s", Message(err))
		return nil, err
	}
	results, err := s.run(ctx, plan.Requests)
	if err != nil {
		s.notify.Error("Failed to create tasks: %s", Message(err))
		return results, err
	}
	s.notify.Success("Applied %d tasks to %d work items", len(plan.StoryType.Tasks), len(plan.ParentIDs))
	return results, nil
}

func (s *Service) run(ctx context.Context, reqs []azure.Request) ([]*models.CreationResult, error) {
	exec := &batch.Executor{
		Policy:      s.policy,
		MaxParallel: s.maxParallel,
		Create:      s.client.Create,
	}
	results, err := exec.CreateMany(ctx, reqs)
	if err != nil {
		var be *batch.Error
		if errors.As(err, &be) && len(be.Completed) > 0 {
			return results, fmt.Errorf("%w (%d created before the failure)", err, len(be.Completed))
		}
		return results, err
	}
	return results, nil
}
