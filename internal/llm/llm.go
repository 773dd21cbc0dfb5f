package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/ado/internal/models"
)

// SuggestedTask is one task template proposed for a story type.
type SuggestedTask struct {
	Name     string  `json:"name"`
	Activity string  `json:"activity"`
	Hours    float64 `json:"hours"`
}

// Template converts s into a task template with a known activity and
// non-negative hours.
func (s SuggestedTask) Template() models.TaskTemplate {
	activity, ok := models.ParseActivity(s.Activity)
	if !ok {
		activity = models.ActivityDevelopment
	}
	hours := s.Hours
	if hours < 0 {
		hours = 0
	}
	return models.TaskTemplate{Name: strings.TrimSpace(s.Name), Activity: activity, Hours: hours}
}

// Client wraps the Anthropic API for task suggestions.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	reqOpts := []option.RequestOption{}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	reqOpts = append(reqOpts, opts...)
	client := anthropic.NewClient(reqOpts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSuggestPrompt constructs the system and user prompts for task suggestion.
func buildSuggestPrompt(storyType, workItemType, teamContext string, existing []string) (system string, user string) {
	activities := make([]string, len(models.Activities))
	for i, a := range models.Activities {
		activities[i] = fmt.Sprintf("%q", a)
	}

	system = `You plan engineering work in Azure DevOps. Given a story type, propose the child tasks that every work item of that type usually needs. Return ONLY a JSON array of objects with these fields:
- "name": short task title, imperative mood
- "activity": one of ` + strings.Join(activities, ", ") + `
- "hours": estimated effort in hours, a number, 0 if unknown

Rules:
- Propose between 3 and 8 tasks, in the order they are usually done
- Do not repeat tasks the story type already has
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Story type: ")
	sb.WriteString(storyType)
	sb.WriteString("\n")
	if workItemType != "" {
		sb.WriteString("Applied to: ")
		sb.WriteString(workItemType)
		sb.WriteString("\n")
	}
	if len(existing) > 0 {
		sb.WriteString("\nExisting tasks: ")
		sb.WriteString(strings.Join(existing, ", "))
		sb.WriteString("\n")
	}
	if teamContext != "" {
		sb.WriteString("\nTeam context:\n")
		sb.WriteString(teamContext)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// parseSuggestions decodes the model's reply, tolerating a markdown fence.
// Entries without a name are dropped.
func parseSuggestions(text string) ([]SuggestedTask, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var raw []SuggestedTask
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	tasks := make([]SuggestedTask, 0, len(raw))
	for _, t := range raw {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// SuggestTasks asks the model for task templates for a story type.
func (c *Client) SuggestTasks(ctx context.Context, st models.StoryType, teamContext string) ([]SuggestedTask, error) {
	existing := make([]string, len(st.Tasks))
	for i, t := range st.Tasks {
		existing[i] = t.Name
	}
	systemPrompt, userPrompt := buildSuggestPrompt(st.Name, st.WorkItemType, teamContext, existing)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSuggestions(text)
}
