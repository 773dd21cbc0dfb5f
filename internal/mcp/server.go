package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ado/internal/breakdown"
	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/settings"
	"github.com/joescharf/ado/internal/workitems"
)

// Server exposes the work item operations as MCP tools.
type Server struct {
	settings *settings.Store
	svc      *workitems.Service
	version  string
}

// NewServer creates the MCP server wrapper.
func NewServer(st *settings.Store, svc *workitems.Service, version string) *Server {
	return &Server{settings: st, svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ado", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.statusTool())
	srv.AddTool(s.listConfigsTool())
	srv.AddTool(s.listStoryTypesTool())
	srv.AddTool(s.createWorkItemTool())
	srv.AddTool(s.bulkCreateTool())
	srv.AddTool(s.applyStoryTypeTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// failure reports err to the model along with anything created before it.
func failure(action string, err error, created []*models.CreationResult) (*mcp.CallToolResult, error) {
	msg := fmt.Sprintf("%s: %s", action, workitems.Message(err))
	if n := len(created); n > 0 {
		ids := make([]string, n)
		for i, r := range created {
			ids[i] = fmt.Sprintf("#%d", r.ID)
		}
		msg += fmt.Sprintf(" (already created: %s)", strings.Join(ids, ", "))
	}
	return mcp.NewToolResultError(msg), nil
}

// ado_status
func (s *Server) statusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_status",
		mcp.WithDescription("Report whether Azure DevOps is configured and which organization and project work items will be created in."),
	)
	return tool, s.handleStatus
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]any{
		"configured": s.svc.Configured(),
		"policy":     string(s.svc.Policy()),
	}
	if t, err := s.svc.Target(""); err == nil {
		out["target"] = t.Label()
	} else {
		out["target_error"] = workitems.Message(err)
	}
	return jsonResult(out)
}

// ado_list_configs
func (s *Server) listConfigsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_list_configs",
		mcp.WithDescription("List saved project configurations. Returns a JSON array with id, name, organization, project, area path, and whether it is selected."),
	)
	return tool, s.handleListConfigs
}

func (s *Server) handleListConfigs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type configOut struct {
		models.ProjectConfig
		Selected bool `json:"selected"`
	}
	selected, _ := s.settings.SelectedProjectConfig()
	configs := s.settings.ProjectConfigs()
	out := make([]configOut, len(configs))
	for i, c := range configs {
		out[i] = configOut{ProjectConfig: c, Selected: c.ID == selected.ID}
	}
	return jsonResult(out)
}

// ado_list_story_types
func (s *Server) listStoryTypesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_list_story_types",
		mcp.WithDescription("List story types with their task templates (name, activity, hours)."),
	)
	return tool, s.handleListStoryTypes
}

func (s *Server) handleListStoryTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.settings.StoryTypes())
}

// ado_create_work_item
func (s *Server) createWorkItemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_create_work_item",
		mcp.WithDescription("Create one Azure DevOps work item."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Work item title")),
		mcp.WithString("type", mcp.Description("Work item type (default: Product Backlog Item)")),
		mcp.WithString("description", mcp.Description("HTML or plain text description")),
		mcp.WithString("acceptance_criteria", mcp.Description("Acceptance criteria")),
		mcp.WithString("parent_id", mcp.Description("ID of an existing parent work item")),
		mcp.WithString("config", mcp.Description("Project configuration id or name (default: selected)")),
	)
	return tool, s.handleCreateWorkItem
}

func (s *Server) handleCreateWorkItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	configID, err := s.configID(request)
	if err != nil {
		return failure("failed to create work item", err, nil)
	}

	draft := models.WorkItemDraft{
		Title:              title,
		Description:        request.GetString("description", ""),
		AcceptanceCriteria: request.GetString("acceptance_criteria", ""),
		ItemType:           request.GetString("type", models.WorkItemTypeProductBacklogItem),
	}
	if p := strings.TrimSpace(request.GetString("parent_id", "")); p != "" {
		id, ok := breakdown.ParseID(p)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid parent_id: %s", p)), nil
		}
		draft.ParentID = id
	}

	res, err := s.svc.CreateWorkItem(ctx, configID, draft)
	if err != nil {
		return failure("failed to create work item", err, nil)
	}
	return jsonResult(res)
}

// ado_bulk_create
func (s *Server) bulkCreateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_bulk_create",
		mcp.WithDescription("Create several work items of one type, one per line of titles. Stops at the first failure; items created before it remain."),
		mcp.WithString("titles", mcp.Required(), mcp.Description("Newline-separated titles; blank lines are skipped")),
		mcp.WithString("type", mcp.Description("Work item type (default: Product Backlog Item)")),
		mcp.WithString("parent_id", mcp.Description("ID of an existing parent for every item")),
		mcp.WithString("config", mcp.Description("Project configuration id or name (default: selected)")),
	)
	return tool, s.handleBulkCreate
}

func (s *Server) handleBulkCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	titles, err := request.RequireString("titles")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: titles"), nil
	}
	configID, err := s.configID(request)
	if err != nil {
		return failure("failed to create work items", err, nil)
	}

	results, err := s.svc.CreateBulk(ctx, workitems.BulkInput{
		ConfigID: configID,
		ItemType: request.GetString("type", models.WorkItemTypeProductBacklogItem),
		ParentID: request.GetString("parent_id", ""),
		Titles:   []string{titles},
	})
	if err != nil {
		return failure("failed to create work items", err, results)
	}
	return jsonResult(results)
}

// ado_apply_story_type
func (s *Server) applyStoryTypeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ado_apply_story_type",
		mcp.WithDescription("Create every task of a story type as a child Task under each given work item."),
		mcp.WithString("story_type", mcp.Required(), mcp.Description("Story type id or name")),
		mcp.WithString("work_item_ids", mcp.Required(), mcp.Description("Comma or space separated parent work item IDs")),
		mcp.WithString("config", mcp.Description("Project configuration id or name (default: selected)")),
	)
	return tool, s.handleApplyStoryType
}

func (s *Server) handleApplyStoryType(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storyType, err := request.RequireString("story_type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: story_type"), nil
	}
	ids, err := request.RequireString("work_item_ids")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: work_item_ids"), nil
	}
	configID, err := s.configID(request)
	if err != nil {
		return failure("failed to create tasks", err, nil)
	}

	results, err := s.svc.ApplyStoryType(ctx, workitems.ApplyInput{
		ConfigID:    configID,
		StoryTypeID: storyType,
		TargetIDs:   breakdown.SplitIDs(ids),
	})
	if err != nil {
		return failure("failed to create tasks", err, results)
	}
	return jsonResult(results)
}

// configID resolves the optional config argument, by id or name.
func (s *Server) configID(request mcp.CallToolRequest) (string, error) {
	ref := strings.TrimSpace(request.GetString("config", ""))
	if ref == "" {
		return "", nil
	}
	c, err := s.settings.FindProjectConfig(ref)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}
