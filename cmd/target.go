package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/models"
	"github.com/joescharf/ado/internal/output"
)

var (
	targetOrg      string
	targetProject  string
	targetAreaPath string
	targetName     string
	targetSelect   bool
)

var targetCmd = &cobra.Command{
	Use:     "target",
	Aliases: []string{"targets"},
	Short:   "Manage project configurations",
	Long: `A project configuration names an organization, project, and optional area
path. Once any exist, one must be selected (or passed with --target) before
work items can be created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetListRun()
	},
}

var targetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List project configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetListRun()
	},
}

var targetAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a project configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetAddRun(args[0])
	},
}

var targetUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Update a project configuration (unset flags keep their value)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetUpdateRun(cmd, args[0])
	},
}

var targetDeleteCmd = &cobra.Command{
	Use:     "delete <id|name>",
	Aliases: []string{"rm"},
	Short:   "Delete a project configuration",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetDeleteRun(args[0])
	},
}

var targetSelectCmd = &cobra.Command{
	Use:   "select <id|name>",
	Short: "Select the project configuration used by default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetSelectRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{targetAddCmd, targetUpdateCmd} {
		c.Flags().StringVar(&targetOrg, "org", "", "Organization name")
		c.Flags().StringVar(&targetProject, "project", "", "Project name")
		c.Flags().StringVar(&targetAreaPath, "area-path", "", `Area path below the project, e.g. "Team A"`)
	}
	targetAddCmd.Flags().BoolVar(&targetSelect, "select", false, "Select the new configuration")
	targetUpdateCmd.Flags().StringVar(&targetName, "name", "", "New display name")

	targetCmd.AddCommand(targetListCmd)
	targetCmd.AddCommand(targetAddCmd)
	targetCmd.AddCommand(targetUpdateCmd)
	targetCmd.AddCommand(targetDeleteCmd)
	targetCmd.AddCommand(targetSelectCmd)
	rootCmd.AddCommand(targetCmd)
}

func targetListRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	configs := st.ProjectConfigs()
	if len(configs) == 0 {
		ui.Info("No project configurations. The credential's organization and project are used.")
		return nil
	}

	selected, _ := st.SelectedProjectConfig()
	table := ui.Table([]string{"", "Name", "Organization", "Project", "Area Path", "ID"})
	for _, c := range configs {
		mark := ""
		if c.ID == selected.ID {
			mark = output.Green("*")
		}
		_ = table.Append([]string{mark, output.Cyan(c.Name), c.Organization, c.Project, c.AreaPath, c.ID})
	}
	return table.Render()
}

func targetAddRun(name string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	c := models.ProjectConfig{Name: name, Organization: targetOrg, Project: targetProject, AreaPath: targetAreaPath}
	if dryRun {
		ui.DryRunMsg("Would add project configuration %q (%s/%s)", c.Name, c.Organization, c.Project)
		return nil
	}

	ctx := context.Background()
	created, err := st.AddProjectConfig(ctx, c)
	if err != nil {
		return err
	}
	ui.Success("Added project configuration %s", output.Cyan(created.Name))
	ui.VerboseLog("ID: %s", created.ID)

	if targetSelect {
		if _, err := st.SelectProjectConfig(ctx, created.ID); err != nil {
			return err
		}
		ui.Success("Selected %s", output.Cyan(created.Name))
	}
	return nil
}

func targetUpdateRun(cmd *cobra.Command, ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	c, err := st.FindProjectConfig(ref)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		c.Name = targetName
	}
	if flags.Changed("org") {
		c.Organization = targetOrg
	}
	if flags.Changed("project") {
		c.Project = targetProject
	}
	if flags.Changed("area-path") {
		c.AreaPath = targetAreaPath
	}

	if dryRun {
		ui.DryRunMsg("Would update project configuration %q", c.Name)
		return nil
	}
	if err := st.UpdateProjectConfig(context.Background(), c); err != nil {
		return err
	}
	ui.Success("Updated project configuration %s", output.Cyan(c.Name))
	return nil
}

func targetDeleteRun(ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	c, err := st.FindProjectConfig(ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete project configuration %q", c.Name)
		return nil
	}
	if err := st.DeleteProjectConfig(context.Background(), c.ID); err != nil {
		return fmt.Errorf("delete project configuration: %w", err)
	}
	ui.Success("Deleted project configuration %s", output.Cyan(c.Name))
	return nil
}

func targetSelectRun(ref string) error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	c, err := st.FindProjectConfig(ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would select project configuration %q", c.Name)
		return nil
	}
	if _, err := st.SelectProjectConfig(context.Background(), c.ID); err != nil {
		return err
	}
	ui.Success("Selected %s (%s/%s)", output.Cyan(c.Name), c.Organization, c.Project)
	return nil
}
