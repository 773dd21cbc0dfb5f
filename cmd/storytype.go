package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/output"
	"github.com/joescharf/ado/internal/settings"
)

var (
	storyTypeWIT      string
	taskActivity      string
	taskHours         float64
	exportFormat      string
	exportOutput      string
	importFormat      string
	suggestContext    string
	suggestApply      bool
	storyTypeRenameTo string
	storyTypeNewWIT   string
)

var storyTypeCmd = &cobra.Command{
	Use:     "storytype",
	Aliases: []string{"st", "story-type"},
	Short:   "Manage story types and their task templates",
	Long: `A story type is a named list of task templates. Applying it to existing
work items ('ado apply') creates one child Task per template under each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeListRun()
	},
}

var storyTypeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List story types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeListRun()
	},
}

var storyTypeShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show a story type's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeShowRun(args[0])
	},
}

var storyTypeAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a story type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeAddRun(args[0])
	},
}

var storyTypeUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Rename a story type or change its work item type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeUpdateRun(cmd, args[0])
	},
}

var storyTypeDeleteCmd = &cobra.Command{
	Use:     "delete <id|name>",
	Aliases: []string{"rm"},
	Short:   "Delete a story type",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeDeleteRun(args[0])
	},
}

var storyTypeTaskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage a story type's task templates",
}

var storyTypeTaskAddCmd = &cobra.Command{
	Use:   "add <story-type> <task name>",
	Short: "Append a task template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(args[0], args[1])
	},
}

var storyTypeTaskDeleteCmd = &cobra.Command{
	Use:     "delete <story-type> <task id|name>",
	Aliases: []string{"rm"},
	Short:   "Remove a task template",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDeleteRun(args[0], args[1])
	},
}

var storyTypeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all story types as YAML, TOML, or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeExportRun()
	},
}

var storyTypeImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Add story types from a YAML, TOML, or JSON file",
	Long: `Add story types from a file. The format follows the extension unless
--format is given; '-' reads stdin. Imported entries get fresh ids and are
added alongside existing ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeImportRun(args[0])
	},
}

var storyTypeSuggestCmd = &cobra.Command{
	Use:   "suggest <id|name>",
	Short: "Ask an LLM to propose task templates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storyTypeSuggestRun(args[0])
	},
}

func init() {
	storyTypeAddCmd.Flags().StringVar(&storyTypeWIT, "type", models.WorkItemTypeProductBacklogItem, "Work item type the story type applies to")
	storyTypeUpdateCmd.Flags().StringVar(&storyTypeNewWIT, "type", "", "Work item type the story type applies to")
	storyTypeUpdateCmd.Flags().StringVar(&storyTypeRenameTo, "name", "", "New name")

	storyTypeTaskAddCmd.Flags().StringVarP(&taskActivity, "activity", "a", string(models.ActivityDevelopment), "Activity: Development, Design, Testing, Documentation, Deployment, Requirements")
	storyTypeTaskAddCmd.Flags().Float64VarP(&taskHours, "hours", "H", 0, "Original estimate in hours")

	storyTypeExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "yaml, toml, or json (default: from --output extension, else yaml)")
	storyTypeExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	storyTypeImportCmd.Flags().StringVarP(&importFormat, "format", "f", "", "yaml, toml, or json (default: from file extension)")

	storyTypeSuggestCmd.Flags().StringVar(&suggestContext, "context", "", "Extra context for the model, e.g. team conventions")
	storyTypeSuggestCmd.Flags().BoolVar(&suggestApply, "apply", false, "Append the suggested tasks to the story type")

	storyTypeTaskCmd.AddCommand(storyTypeTaskAddCmd)
	storyTypeTaskCmd.AddCommand(storyTypeTaskDeleteCmd)

	storyTypeCmd.AddCommand(storyTypeListCmd)
	storyTypeCmd.AddCommand(storyTypeShowCmd)
	storyTypeCmd.AddCommand(storyTypeAddCmd)
	storyTypeCmd.AddCommand(storyTypeUpdateCmd)
	storyTypeCmd.AddCommand(storyTypeDeleteCmd)
	storyTypeCmd.AddCommand(storyTypeTaskCmd)
	storyTypeCmd.AddCommand(storyTypeExportCmd)
	storyTypeCmd.AddCommand(storyTypeImportCmd)
	storyTypeCmd.AddCommand(storyTypeSuggestCmd)
	rootCmd.AddCommand(storyTypeCmd)
}

func storyTypeListRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	types := st.StoryTypes()
	if len(types) == 0 {
		ui.Info("No story types. Use 'ado storytype add <name>' to create one.")
		return nil
	}

	table := ui.Table([]string{"Name", "Work Item Type", "Tasks", "Hours", "ID"})
	for _, t := range types {
		_ = table.Append([]string{
			output.Cyan(t.Name),
			t.WorkItemType,
			strconv.Itoa(len(t.Tasks)),
			output.Hours(t.TotalHours()),
			t.ID,
		})
	}
	return table.Render()
}

func storyTypeShowRun(ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}

	ui.Info("%s (%s), %s total", output.Cyan(t.Name), t.WorkItemType, output.Hours(t.TotalHours()))
	if len(t.Tasks) == 0 {
		ui.Info("No tasks. Use 'ado storytype task add %q <name>' to add one.", t.Name)
		return nil
	}
	return renderTasks(t.Tasks)
}

func renderTasks(tasks []models.TaskTemplate) error {
	table := ui.Table([]string{"#", "Task", "Activity", "Hours", "ID"})
	for i, task := range tasks {
		_ = table.Append([]string{
			strconv.Itoa(i + 1),
			task.Name,
			string(task.Activity),
			output.Hours(task.Hours),
			task.ID,
		})
	}
	return table.Render()
}

func storyTypeAddRun(name string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would add story type %q (%s)", name, storyTypeWIT)
		return nil
	}
	created, err := st.AddStoryType(context.Background(), models.StoryType{Name: name, WorkItemType: storyTypeWIT})
	if err != nil {
		return err
	}
	ui.Success("Added story type %s", output.Cyan(created.Name))
	ui.VerboseLog("ID: %s", created.ID)
	return nil
}

func storyTypeUpdateRun(cmd *cobra.Command, ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("name") {
		t.Name = storyTypeRenameTo
	}
	if cmd.Flags().Changed("type") {
		t.WorkItemType = storyTypeNewWIT
	}
	if dryRun {
		ui.DryRunMsg("Would update story type %q", t.Name)
		return nil
	}
	if err := st.UpdateStoryType(context.Background(), t); err != nil {
		return err
	}
	ui.Success("Updated story type %s", output.Cyan(t.Name))
	return nil
}

func storyTypeDeleteRun(ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete story type %q and its %d tasks", t.Name, len(t.Tasks))
		return nil
	}
	if err := st.DeleteStoryType(context.Background(), t.ID); err != nil {
		return fmt.Errorf("delete story type: %w", err)
	}
	ui.Success("Deleted story type %s", output.Cyan(t.Name))
	return nil
}

func taskAddRun(ref, name string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}

	task, err := settings.NormalizeTask(models.TaskTemplate{Name: name, Activity: models.Activity(taskActivity), Hours: taskHours})
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would add task %q (%s, %s) to %s", task.Name, task.Activity, output.Hours(task.Hours), t.Name)
		return nil
	}
	if _, err := st.AddTask(context.Background(), t.ID, task); err != nil {
		return err
	}
	ui.Success("Added task %q to %s", task.Name, output.Cyan(t.Name))
	return nil
}

// taskDeleteRun removes a task by id, or by exact name when no id matches.
func taskDeleteRun(ref, taskRef string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}

	var task *models.TaskTemplate
	for i := range t.Tasks {
		if t.Tasks[i].ID == taskRef {
			task = &t.Tasks[i]
			break
		}
	}
	if task == nil {
		for i := range t.Tasks {
			if t.Tasks[i].Name == taskRef {
				task = &t.Tasks[i]
				break
			}
		}
	}
	if task == nil {
		return fmt.Errorf("task %w: %s", settings.ErrNotFound, taskRef)
	}

	if dryRun {
		ui.DryRunMsg("Would remove task %q from %s", task.Name, t.Name)
		return nil
	}
	if err := st.DeleteTask(context.Background(), t.ID, task.ID); err != nil {
		return err
	}
	ui.Success("Removed task %q from %s", task.Name, output.Cyan(t.Name))
	return nil
}

func storyTypeExportRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	format := settings.FormatFromPath(exportOutput)
	if exportFormat != "" {
		if format, err = settings.ParseFormat(exportFormat); err != nil {
			return err
		}
	}

	var w io.Writer = ui.Out
	if exportOutput != "" {
		if dryRun {
			ui.DryRunMsg("Would write %d story types to %s (%s)", len(st.StoryTypes()), exportOutput, format)
			return nil
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}

	if err := settings.EncodeStoryTypes(w, format, st.StoryTypes()); err != nil {
		return fmt.Errorf("encode story types: %w", err)
	}
	if exportOutput != "" {
		ui.Success("Exported %d story types to %s", len(st.StoryTypes()), exportOutput)
	}
	return nil
}

func storyTypeImportRun(path string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	format := settings.FormatFromPath(path)
	if importFormat != "" {
		if format, err = settings.ParseFormat(importFormat); err != nil {
			return err
		}
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	types, err := settings.DecodeStoryTypes(r, format)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		ui.Warning("No story types found in %s", path)
		return nil
	}

	if dryRun {
		for _, t := range types {
			ui.DryRunMsg("Would import story type %q with %d tasks", t.Name, len(t.Tasks))
		}
		return nil
	}
	imported, err := st.ImportStoryTypes(context.Background(), types)
	if err != nil {
		return err
	}
	ui.Success("Imported %d story types", len(imported))
	return nil
}

func storyTypeSuggestRun(ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	t, err := st.FindStoryType(ref)
	if err != nil {
		return err
	}
	client, err := newLLMClient()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	ui.VerboseLog("Asking for tasks for %s", t.Name)
	suggestions, err := client.SuggestTasks(ctx, t, suggestContext)
	if err != nil {
		return fmt.Errorf("suggest tasks: %w", err)
	}
	if len(suggestions) == 0 {
		ui.Warning("No suggestions returned")
		return nil
	}

	tasks := make([]models.TaskTemplate, len(suggestions))
	for i, s := range suggestions {
		tasks[i] = s.Template()
	}
	if err := renderTasks(tasks); err != nil {
		return err
	}

	if !suggestApply {
		ui.Info("Re-run with --apply to add these tasks to %s", t.Name)
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would add %d tasks to %s", len(tasks), t.Name)
		return nil
	}
	for _, task := range tasks {
		if _, err := st.AddTask(ctx, t.ID, task); err != nil {
			return err
		}
	}
	ui.Success("Added %d tasks to %s", len(tasks), output.Cyan(t.Name))
	return nil
}
