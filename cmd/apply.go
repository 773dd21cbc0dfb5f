package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/breakdown"
	"github.com/joescharf/ado/internal/output"
	"github.com/joescharf/ado/internal/workitems"
)

var (
	applyTarget string
	applyJSON   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <story-type> <work-item-id>...",
	Short: "Create a story type's tasks under existing work items",
	Long: `Create every task template of a story type as a child Task of each given
work item: all tasks for the first ID, then all tasks for the next.

IDs may be separated by spaces or commas. Entries that are not positive
integers are skipped, and repeated IDs are used once.`,
	Example: `  ado apply "Feature work" 1201 1202
  ado apply feature 1201,1202,1203 --dry-run`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyRun(args[0], breakdown.SplitIDs(args[1:]...))
	},
}

func init() {
	addTargetFlag(applyCmd, &applyTarget)
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "Print created tasks as JSON")
	rootCmd.AddCommand(applyCmd)
}

func applyRun(storyType string, ids []string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	configID, err := resolveConfigRef(st, applyTarget)
	if err != nil {
		return err
	}

	in := workitems.ApplyInput{ConfigID: configID, StoryTypeID: storyType, TargetIDs: ids}
	plan, err := svc.PlanApply(in)
	if err != nil {
		return err
	}
	if skipped := len(ids) - len(plan.ParentIDs); skipped > 0 {
		ui.Warning("Skipped %d invalid or repeated work item IDs", skipped)
	}
	ui.VerboseLog("%d tasks x %d work items = %d requests to %s",
		len(plan.StoryType.Tasks), len(plan.ParentIDs), len(plan.Requests), plan.Target.Label())

	if dryRun {
		return printPlan(plan.Target.Label(), plan.Requests)
	}
	if len(plan.Requests) == 0 {
		ui.Warning("Story type %s has no tasks", output.Cyan(plan.StoryType.Name))
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	results, err := svc.ApplyStoryType(ctx, in)
	if len(results) > 0 {
		if applyJSON {
			if jerr := ui.JSON(results); jerr != nil {
				return jerr
			}
		} else if rerr := ui.Results(results); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return errReported
	}
	return nil
}
