package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/workitems"
)

var (
	bulkType   string
	bulkParent string
	bulkTarget string
	bulkTitles []string
	bulkFile   string
	bulkJSON   bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk [titles-file|-]",
	Short: "Create one work item per title",
	Long: `Create work items of one type from a list of titles, one per line.

Titles come from repeated --title flags, a file argument (or --file), or
stdin with '-'. Lines are trimmed and blank lines skipped. With the
sequential batch policy the run stops at the first failure; items created
before it are kept and listed.`,
	Example: `  ado bulk --title "Login page" --title "Logout"
  ado bulk titles.txt --type Bug --parent 1234
  pbpaste | ado bulk -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			bulkFile = args[0]
		}
		return bulkRun(cmd.InOrStdin())
	},
}

func init() {
	bulkCmd.Flags().StringVarP(&bulkType, "type", "t", models.WorkItemTypeProductBacklogItem, "Work item type")
	bulkCmd.Flags().StringVarP(&bulkParent, "parent", "p", "", "Parent work item ID for every item")
	bulkCmd.Flags().StringArrayVar(&bulkTitles, "title", nil, "Title (repeatable)")
	bulkCmd.Flags().StringVarP(&bulkFile, "file", "f", "", "File with one title per line ('-' for stdin)")
	addTargetFlag(bulkCmd, &bulkTarget)
	bulkCmd.Flags().BoolVar(&bulkJSON, "json", false, "Print created work items as JSON")
	rootCmd.AddCommand(bulkCmd)
}

// readTitles collects titles from flags and the optional file or stdin.
func readTitles(stdin io.Reader) ([]string, error) {
	titles := append([]string(nil), bulkTitles...)
	switch bulkFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		titles = append(titles, string(data))
	default:
		data, err := os.ReadFile(bulkFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", bulkFile, err)
		}
		titles = append(titles, string(data))
	}
	return titles, nil
}

func bulkRun(stdin io.Reader) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	configID, err := resolveConfigRef(st, bulkTarget)
	if err != nil {
		return err
	}
	titles, err := readTitles(stdin)
	if err != nil {
		return err
	}

	in := workitems.BulkInput{
		ConfigID: configID,
		ItemType: bulkType,
		ParentID: bulkParent,
		Titles:   titles,
	}

	if dryRun {
		reqs, target, err := svc.PlanBulk(in)
		if err != nil {
			return err
		}
		return printPlan(target.Label(), reqs)
	}

	ctx, cancel := requestContext()
	defer cancel()

	results, err := svc.CreateBulk(ctx, in)
	if len(results) > 0 {
		if bulkJSON {
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
