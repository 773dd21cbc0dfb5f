// Package settings is the configuration store: the credential, named project
// configurations, story-type templates, and the selected-configuration
// pointer. Every mutation writes the affected collection back to the
// underlying document store before returning.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/store"
)

// Document keys. The "ado-" prefix namespaces everything this package owns.
const (
	Namespace         = "ado-"
	KeyCredential     = Namespace + "settings"
	KeyProjectConfigs = Namespace + "project-configs"
	KeyStoryTypes     = Namespace + "story-types"
	KeySelected       = Namespace + "selected-config"
)

// Store holds the settings in memory, mirrored to a store.Store.
type Store struct {
	mu      sync.RWMutex
	backend store.Store
	newID   func() string

	credential models.Credential
	configs    []models.ProjectConfig
	storyTypes []models.StoryType
	selectedID string
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewULID generates a new ULID string.
func NewULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Open loads every collection from backend. Missing documents fall back to
// empty defaults; malformed ones are reported.
func Open(ctx context.Context, backend store.Store, opts ...Option) (*Store, error) {
	s := &Store{backend: backend, newID: NewULID}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx, KeyCredential, &s.credential); err != nil {
		return nil, err
	}
	if err := s.load(ctx, KeyProjectConfigs, &s.configs); err != nil {
		return nil, err
	}
	if err := s.load(ctx, KeyStoryTypes, &s.storyTypes); err != nil {
		return nil, err
	}
	if err := s.load(ctx, KeySelected, &s.selectedID); err != nil {
		return nil, err
	}
	for i := range s.storyTypes {
		if s.storyTypes[i].Tasks == nil {
			s.storyTypes[i].Tasks = []models.TaskTemplate{}
		}
	}
	return s, nil
}

func (s *Store) load(ctx context.Context, key string, v any) error {
	data, err := s.backend.GetDocument(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.PutDocument(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Reset deletes every stored document in the namespace and clears memory.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.ListKeys(ctx, Namespace)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.backend.DeleteDocument(ctx, key); err != nil {
			return err
		}
	}
	s.credential = models.Credential{}
	s.configs = nil
	s.storyTypes = nil
	s.selectedID = ""
	return nil
}

// --- Credential ---

// Credential returns the active credential.
func (s *Store) Credential() models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// SetCredential replaces the active credential.
func (s *Store) SetCredential(ctx context.Context, c models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.PersonalAccessToken = strings.TrimSpace(c.PersonalAccessToken)
	c.Organization = strings.TrimSpace(c.Organization)
	c.Project = strings.TrimSpace(c.Project)
	if err := s.save(ctx, KeyCredential, c); err != nil {
		return err
	}
	s.credential = c
	return nil
}

// ClearCredential deletes the stored credential. Project configurations,
// story types, and the selection are kept.
func (s *Store) ClearCredential(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteDocument(ctx, KeyCredential); err != nil {
		return err
	}
	s.credential = models.Credential{}
	return nil
}

// IsConfigured is the gate every network operation checks first.
func (s *Store) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential.Configured()
}

// --- Project configurations ---

// ProjectConfigs returns a copy of the project configurations in insertion order.
func (s *Store) ProjectConfigs() []models.ProjectConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.configs)
}

// ProjectConfig looks up a configuration by id.
func (s *Store) ProjectConfig(id string) (models.ProjectConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.configIndex(id)
	if i < 0 {
		return models.ProjectConfig{}, fmt.Errorf("project configuration %w: %s", ErrNotFound, id)
	}
	return s.configs[i], nil
}

// FindProjectConfig resolves ref as an id first, then as a case-insensitive name.
func (s *Store) FindProjectConfig(ref string) (models.ProjectConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.configIndex(ref); i >= 0 {
		return s.configs[i], nil
	}
	for _, c := range s.configs {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return models.ProjectConfig{}, fmt.Errorf("project configuration %w: %s", ErrNotFound, ref)
}

func (s *Store) configIndex(id string) int {
	return slices.IndexFunc(s.configs, func(c models.ProjectConfig) bool { return c.ID == id })
}

func validateProjectConfig(c models.ProjectConfig) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("%w: project configuration name is required", ErrInvalid)
	case strings.TrimSpace(c.Organization) == "":
		return fmt.Errorf("%w: organization is required", ErrInvalid)
	case strings.TrimSpace(c.Project) == "":
		return fmt.Errorf("%w: project is required", ErrInvalid)
	}
	return nil
}

// AddProjectConfig assigns a fresh id, appends, and persists.
func (s *Store) AddProjectConfig(ctx context.Context, c models.ProjectConfig) (models.ProjectConfig, error) {
	if err := validateProjectConfig(c); err != nil {
		return models.ProjectConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.newID()
	next := append(slices.Clone(s.configs), c)
	if err := s.save(ctx, KeyProjectConfigs, next); err != nil {
		return models.ProjectConfig{}, err
	}
	s.configs = next
	return c, nil
}

// UpdateProjectConfig replaces the entry matching c.ID. An unknown id is
// ignored.
func (s *Store) UpdateProjectConfig(ctx context.Context, c models.ProjectConfig) error {
	if err := validateProjectConfig(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.configIndex(c.ID)
	if i < 0 {
		return nil
	}
	next := slices.Clone(s.configs)
	next[i] = c
	if err := s.save(ctx, KeyProjectConfigs, next); err != nil {
		return err
	}
	s.configs = next
	return nil
}

// DeleteProjectConfig removes the entry and clears the selection if it
// pointed at it.
func (s *Store) DeleteProjectConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(s.configs), func(c models.ProjectConfig) bool { return c.ID == id })
	if err := s.save(ctx, KeyProjectConfigs, next); err != nil {
		return err
	}
	s.configs = next

	if s.selectedID == id {
		if err := s.save(ctx, KeySelected, ""); err != nil {
			return err
		}
		s.selectedID = ""
	}
	return nil
}

// SelectProjectConfig sets the selection and copies organization, project,
// and area path into the credential so single-target callers follow along.
func (s *Store) SelectProjectConfig(ctx context.Context, id string) (models.ProjectConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.configIndex(id)
	if i < 0 {
		return models.ProjectConfig{}, fmt.Errorf("project configuration %w: %s", ErrNotFound, id)
	}
	c := s.configs[i]

	cred := s.credential
	cred.Organization = c.Organization
	cred.Project = c.Project
	cred.AreaPath = c.AreaPath
	if err := s.save(ctx, KeyCredential, cred); err != nil {
		return models.ProjectConfig{}, err
	}
	if err := s.save(ctx, KeySelected, c.ID); err != nil {
		return models.ProjectConfig{}, err
	}
	s.credential = cred
	s.selectedID = c.ID
	return c, nil
}

// SelectedProjectConfig returns the selected configuration, if any.
func (s *Store) SelectedProjectConfig() (models.ProjectConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.configIndex(s.selectedID)
	if s.selectedID == "" || i < 0 {
		return models.ProjectConfig{}, false
	}
	return s.configs[i], true
}

// --- Story types ---

// StoryTypes returns a deep copy of the story types in insertion order.
func (s *Store) StoryTypes() []models.StoryType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StoryType, len(s.storyTypes))
	for i, st := range s.storyTypes {
		out[i] = cloneStoryType(st)
	}
	return out
}

// StoryType looks up a story type by id.
func (s *Store) StoryType(id string) (models.StoryType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.storyTypeIndex(id)
	if i < 0 {
		return models.StoryType{}, fmt.Errorf("story type %w: %s", ErrNotFound, id)
	}
	return cloneStoryType(s.storyTypes[i]), nil
}

// FindStoryType resolves ref as an id first, then as a case-insensitive name.
func (s *Store) FindStoryType(ref string) (models.StoryType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.storyTypeIndex(ref); i >= 0 {
		return cloneStoryType(s.storyTypes[i]), nil
	}
	for _, st := range s.storyTypes {
		if strings.EqualFold(st.Name, ref) {
			return cloneStoryType(st), nil
		}
	}
	return models.StoryType{}, fmt.Errorf("story type %w: %s", ErrNotFound, ref)
}

func (s *Store) storyTypeIndex(id string) int {
	return slices.IndexFunc(s.storyTypes, func(st models.StoryType) bool { return st.ID == id })
}

func cloneStoryType(st models.StoryType) models.StoryType {
	st.Tasks = slices.Clone(st.Tasks)
	if st.Tasks == nil {
		st.Tasks = []models.TaskTemplate{}
	}
	return st
}

// normalizeStoryType validates st and fills defaults. Tasks without an id
// are given one.
func (s *Store) normalizeStoryType(st models.StoryType) (models.StoryType, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return st, fmt.Errorf("%w: story type name is required", ErrInvalid)
	}
	if strings.TrimSpace(st.WorkItemType) == "" {
		st.WorkItemType = models.WorkItemTypeProductBacklogItem
	}
	tasks := make([]models.TaskTemplate, 0, len(st.Tasks))
	for _, t := range st.Tasks {
		nt, err := NormalizeTask(t)
		if err != nil {
			return st, err
		}
		if nt.ID == "" {
			nt.ID = s.newID()
		}
		tasks = append(tasks, nt)
	}
	st.Tasks = tasks
	return st, nil
}

// NormalizeTask validates a task template: name required, activity one of
// models.Activities (default Development), hours non-negative.
func NormalizeTask(t models.TaskTemplate) (models.TaskTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, fmt.Errorf("%w: task name is required", ErrInvalid)
	}
	if t.Activity == "" {
		t.Activity = models.ActivityDevelopment
	} else {
		a, ok := models.ParseActivity(string(t.Activity))
		if !ok {
			return t, fmt.Errorf("%w: unknown activity %q", ErrInvalid, t.Activity)
		}
		t.Activity = a
	}
	if t.Hours < 0 {
		return t, fmt.Errorf("%w: hours must not be negative", ErrInvalid)
	}
	return t, nil
}

// AddStoryType assigns a fresh id, appends, and persists.
func (s *Store) AddStoryType(ctx context.Context, st models.StoryType) (models.StoryType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.normalizeStoryType(st)
	if err != nil {
		return models.StoryType{}, err
	}
	st.ID = s.newID()

	next := append(slices.Clone(s.storyTypes), st)
	if err := s.save(ctx, KeyStoryTypes, next); err != nil {
		return models.StoryType{}, err
	}
	s.storyTypes = next
	return cloneStoryType(st), nil
}

// UpdateStoryType replaces the entry matching st.ID. An unknown id is ignored.
func (s *Store) UpdateStoryType(ctx context.Context, st models.StoryType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.storyTypeIndex(st.ID)
	if i < 0 {
		return nil
	}
	st, err := s.normalizeStoryType(st)
	if err != nil {
		return err
	}
	return s.replaceStoryType(ctx, i, st)
}

func (s *Store) replaceStoryType(ctx context.Context, i int, st models.StoryType) error {
	next := slices.Clone(s.storyTypes)
	next[i] = st
	if err := s.save(ctx, KeyStoryTypes, next); err != nil {
		return err
	}
	s.storyTypes = next
	return nil
}

// DeleteStoryType removes the story type with the given id.
func (s *Store) DeleteStoryType(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.DeleteFunc(slices.Clone(s.storyTypes), func(st models.StoryType) bool { return st.ID == id })
	if err := s.save(ctx, KeyStoryTypes, next); err != nil {
		return err
	}
	s.storyTypes = next
	return nil
}

// AddTask appends a task to a story type, assigning it a fresh id.
func (s *Store) AddTask(ctx context.Context, storyTypeID string, t models.TaskTemplate) (models.TaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.storyTypeIndex(storyTypeID)
	if i < 0 {
		return models.TaskTemplate{}, fmt.Errorf("story type %w: %s", ErrNotFound, storyTypeID)
	}
	t, err := NormalizeTask(t)
	if err != nil {
		return models.TaskTemplate{}, err
	}
	t.ID = s.newID()

	st := cloneStoryType(s.storyTypes[i])
	st.Tasks = append(st.Tasks, t)
	if err := s.replaceStoryType(ctx, i, st); err != nil {
		return models.TaskTemplate{}, err
	}
	return t, nil
}

// DeleteTask removes a task from a story type.
func (s *Store) DeleteTask(ctx context.Context, storyTypeID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.storyTypeIndex(storyTypeID)
	if i < 0 {
		return fmt.Errorf("story type %w: %s", ErrNotFound, storyTypeID)
	}
	st := cloneStoryType(s.storyTypes[i])
	n := len(st.Tasks)
	st.Tasks = slices.DeleteFunc(st.Tasks, func(t models.TaskTemplate) bool { return t.ID == taskID })
	if len(st.Tasks) == n {
		return fmt.Errorf("task %w: %s", ErrNotFound, taskID)
	}
	return s.replaceStoryType(ctx, i, st)
}
