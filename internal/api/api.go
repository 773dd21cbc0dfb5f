package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/llm"
	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/settings"
	"github.com/joescharf/ado/internal/workitems"
)

// Server provides the REST API handlers.
type Server struct {
	settings *settings.Store
	svc      *workitems.Service
	llm      *llm.Client
	version  string
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(st *settings.Store, svc *workitems.Service, llmClient *llm.Client, version string) *Server {
	return &Server{
		settings: st,
		svc:      svc,
		llm:      llmClient,
		version:  version,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.status)

	mux.HandleFunc("GET /api/v1/credential", s.getCredential)
	mux.HandleFunc("PUT /api/v1/credential", s.putCredential)
	mux.HandleFunc("DELETE /api/v1/credential", s.clearCredential)
	mux.HandleFunc("DELETE /api/v1/settings", s.resetSettings)

	mux.HandleFunc("GET /api/v1/configs", s.listConfigs)
	mux.HandleFunc("POST /api/v1/configs", s.createConfig)
	mux.HandleFunc("GET /api/v1/configs/selected", s.selectedConfig)
	mux.HandleFunc("GET /api/v1/configs/{id}", s.getConfig)
	mux.HandleFunc("PUT /api/v1/configs/{id}", s.updateConfig)
	mux.HandleFunc("DELETE /api/v1/configs/{id}", s.deleteConfig)
	mux.HandleFunc("POST /api/v1/configs/{id}/select", s.selectConfig)

	mux.HandleFunc("GET /api/v1/story-types", s.listStoryTypes)
	mux.HandleFunc("POST /api/v1/story-types", s.createStoryType)
	mux.HandleFunc("GET /api/v1/story-types/{id}", s.getStoryType)
	mux.HandleFunc("PUT /api/v1/story-types/{id}", s.updateStoryType)
	mux.HandleFunc("DELETE /api/v1/story-types/{id}", s.deleteStoryType)
	mux.HandleFunc("POST /api/v1/story-types/{id}/tasks", s.addTask)
	mux.HandleFunc("DELETE /api/v1/story-types/{id}/tasks/{taskId}", s.deleteTask)
	mux.HandleFunc("POST /api/v1/story-types/{id}/suggest", s.suggestTasks)

	mux.HandleFunc("POST /api/v1/work-items", s.createWorkItem)
	mux.HandleFunc("POST /api/v1/work-items/bulk", s.bulkCreate)
	mux.HandleFunc("POST /api/v1/work-items/breakdown", s.applyStoryType)

	mux.HandleFunc("GET /api/v1/work-item-types", s.listWorkItemTypes)
	mux.HandleFunc("GET /api/v1/activities", s.listActivities)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	switch workitems.KindOf(err) {
	case workitems.KindConfiguration:
		return http.StatusPreconditionFailed
	case workitems.KindValidation:
		if errors.Is(err, settings.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case workitems.KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its kind. Results created before a
// batch failure are included so the caller can see what exists remotely.
func writeServiceError(w http.ResponseWriter, err error, created []*models.CreationResult) {
	status := errorStatus(err)
	if status >= 500 {
		slog.Error("request failed", "error", err)
	}
	body := map[string]any{
		"error": workitems.Message(err),
		"kind":  workitems.KindOf(err),
	}
	if code := workitems.StatusCode(err); code != 0 {
		body["remoteStatus"] = code
	}
	if len(created) > 0 {
		body["created"] = created
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func dryRun(r *http.Request) bool {
	v := r.URL.Query().Get("dry_run")
	return v == "1" || strings.EqualFold(v, "true")
}

// --- Status ---

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"version":      s.version,
		"configured":   s.svc.Configured(),
		"policy":       string(s.svc.Policy()),
		"configs":      len(s.settings.ProjectConfigs()),
		"storyTypes":   len(s.settings.StoryTypes()),
		"llmAvailable": s.llm != nil,
	}
	if t, err := s.svc.Target(""); err == nil {
		out["target"] = t.Label()
		out["targetKind"] = t.Kind.String()
	} else {
		out["targetError"] = workitems.Message(err)
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Credential ---

// MaskToken keeps only the last four characters of a token.
func MaskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "****"
	}
	return "****" + tok[len(tok)-4:]
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	c := s.settings.Credential()
	c.PersonalAccessToken = MaskToken(c.PersonalAccessToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"credential": c,
		"configured": s.svc.Configured(),
	})
}

func (s *Server) putCredential(w http.ResponseWriter, r *http.Request) {
	var c models.Credential
	if !decode(w, r, &c) {
		return
	}
	// A blank token keeps the stored one so clients can edit the rest
	// without re-entering the secret.
	if strings.TrimSpace(c.PersonalAccessToken) == "" {
		c.PersonalAccessToken = s.settings.Credential().PersonalAccessToken
	}
	if err := s.settings.SetCredential(r.Context(), c); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	s.getCredential(w, r)
}

func (s *Server) clearCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearCredential(r.Context()); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetSettings deletes the credential, project configurations, and story types.
func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.Reset(r.Context()); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Project configurations ---

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.ProjectConfigs())
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.settings.ProjectConfig(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createConfig(w http.ResponseWriter, r *http.Request) {
	var c models.ProjectConfig
	if !decode(w, r, &c) {
		return
	}
	created, err := s.settings.AddProjectConfig(r.Context(), c)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.settings.ProjectConfig(id); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	var c models.ProjectConfig
	if !decode(w, r, &c) {
		return
	}
	c.ID = id
	if err := s.settings.UpdateProjectConfig(r.Context(), c); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteProjectConfig(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.settings.SelectProjectConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) selectedConfig(w http.ResponseWriter, r *http.Request) {
	c, ok := s.settings.SelectedProjectConfig()
	if !ok {
		writeError(w, http.StatusNotFound, "no project configuration selected")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Story types ---

func (s *Server) listStoryTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.StoryTypes())
}

func (s *Server) getStoryType(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.FindStoryType(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) createStoryType(w http.ResponseWriter, r *http.Request) {
	var st models.StoryType
	if !decode(w, r, &st) {
		return
	}
	created, err := s.settings.AddStoryType(r.Context(), st)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateStoryType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.settings.StoryType(id); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	var st models.StoryType
	if !decode(w, r, &st) {
		return
	}
	st.ID = id
	if err := s.settings.UpdateStoryType(r.Context(), st); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	s.getStoryType(w, r)
}

func (s *Server) deleteStoryType(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteStoryType(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var t models.TaskTemplate
	if !decode(w, r, &t) {
		return
	}
	created, err := s.settings.AddTask(r.Context(), r.PathValue("id"), t)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteTask(r.Context(), r.PathValue("id"), r.PathValue("taskId")); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) suggestTasks(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured: set anthropic.api_key or ANTHROPIC_API_KEY")
		return
	}
	st, err := s.settings.FindStoryType(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	var req struct {
		Context string `json:"context"`
		Apply   bool   `json:"apply"`
	}
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}

	suggestions, err := s.llm.SuggestTasks(r.Context(), st, req.Context)
	if err != nil {
		slog.Error("task suggestion failed", "story_type", st.Name, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	tasks := make([]models.TaskTemplate, len(suggestions))
	for i, sg := range suggestions {
		tasks[i] = sg.Template()
	}
	if req.Apply {
		for i, t := range tasks {
			added, err := s.settings.AddTask(r.Context(), st.ID, t)
			if err != nil {
				writeServiceError(w, err, nil)
				return
			}
			tasks[i] = added
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "applied": req.Apply})
}

// --- Work items ---

type planResponse struct {
	Target   string          `json:"target"`
	Requests []azure.Request `json:"requests"`
}

type workItemRequest struct {
	ConfigID string `json:"configId"`
	models.WorkItemDraft
}

func (s *Server) createWorkItem(w http.ResponseWriter, r *http.Request) {
	var req workItemRequest
	if !decode(w, r, &req) {
		return
	}
	if dryRun(r) {
		planned, target, err := s.svc.PlanWorkItem(req.ConfigID, req.WorkItemDraft)
		if err != nil {
			writeServiceError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, planResponse{Target: target.Label(), Requests: []azure.Request{planned}})
		return
	}

	res, err := s.svc.CreateWorkItem(r.Context(), req.ConfigID, req.WorkItemDraft)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) bulkCreate(w http.ResponseWriter, r *http.Request) {
	var in workitems.BulkInput
	if !decode(w, r, &in) {
		return
	}
	if dryRun(r) {
		reqs, target, err := s.svc.PlanBulk(in)
		if err != nil {
			writeServiceError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, planResponse{Target: target.Label(), Requests: reqs})
		return
	}

	results, err := s.svc.CreateBulk(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, results)
		return
	}
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) applyStoryType(w http.ResponseWriter, r *http.Request) {
	var in workitems.ApplyInput
	if !decode(w, r, &in) {
		return
	}
	if dryRun(r) {
		plan, err := s.svc.PlanApply(in)
		if err != nil {
			writeServiceError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, planResponse{Target: plan.Target.Label(), Requests: plan.Requests})
		return
	}

	results, err := s.svc.ApplyStoryType(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, results)
		return
	}
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) listWorkItemTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.WorkItemTypes())
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Activities)
}
