package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/breakdown"
	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/output"
	"github.com/joescharf/ado/internal/settings"
)

var (
	createType        string
	createDescription string
	createCriteria    string
	createParent      string
	createTarget      string
	createJSON        bool
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create one work item",
	Long: `Create one work item in the selected project configuration (or the
credential's project when none exist).

With --dry-run the JSON patch document is printed instead of sent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRun(strings.Join(args, " "))
	},
}

func init() {
	createCmd.Flags().StringVarP(&createType, "type", "t", models.WorkItemTypeProductBacklogItem, "Work item type")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Description (HTML allowed)")
	createCmd.Flags().StringVar(&createCriteria, "acceptance-criteria", "", "Acceptance criteria (HTML allowed)")
	createCmd.Flags().StringVarP(&createParent, "parent", "p", "", "Parent work item ID")
	addTargetFlag(createCmd, &createTarget)
	createCmd.Flags().BoolVar(&createJSON, "json", false, "Print the created work item as JSON")
	rootCmd.AddCommand(createCmd)
}

// addTargetFlag registers --target on a command that sends work items.
func addTargetFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVar(v, "target", "", "Project configuration id or name (default: selected)")
}

// resolveConfigRef turns a --target value into a configuration id.
func resolveConfigRef(st *settings.Store, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	c, err := st.FindProjectConfig(ref)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// printPlan writes the requests that would be sent.
func printPlan(target string, reqs []azure.Request) error {
	ui.DryRunMsg("Would send %d request(s) to %s", len(reqs), target)
	return ui.JSON(reqs)
}

func createRun(title string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	configID, err := resolveConfigRef(st, createTarget)
	if err != nil {
		return err
	}

	draft := models.WorkItemDraft{
		Title:              title,
		Description:        createDescription,
		AcceptanceCriteria: createCriteria,
		ItemType:           createType,
	}
	if p := strings.TrimSpace(createParent); p != "" {
		id, ok := breakdown.ParseID(p)
		if !ok {
			return invalidParent(p)
		}
		draft.ParentID = id
	}

	if dryRun {
		req, target, err := svc.PlanWorkItem(configID, draft)
		if err != nil {
			return err
		}
		return printPlan(target.Label(), []azure.Request{req})
	}

	ctx, cancel := requestContext()
	defer cancel()

	res, err := svc.CreateWorkItem(ctx, configID, draft)
	if err != nil {
		return errReported
	}
	if createJSON {
		return ui.JSON(res)
	}
	ui.Info("%s", output.Cyan(res.URL))
	return nil
}
