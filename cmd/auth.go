package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/api"
	"github.com/joescharf/ado/internal/output"
	"github.com/joescharf/ado/internal/workitems"
)

var (
	authToken    string
	authOrg      string
	authProject  string
	authAreaPath string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Azure DevOps credential",
	Long: `Store the personal access token, organization, project, and optional
area path used when no project configuration is selected.

Running bare 'ado auth' is the same as 'ado auth status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authStatusRun()
	},
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set credential fields (unset flags keep their stored value)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authSetRun(cmd)
	},
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored credential with the token masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authShowRun()
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether ado is configured and where work items will go",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authStatusRun()
	},
}

var authResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the credential, project configurations, and story types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authResetRun()
	},
}

func init() {
	authSetCmd.Flags().StringVar(&authToken, "token", "", "Personal access token")
	authSetCmd.Flags().StringVar(&authOrg, "org", "", "Organization name")
	authSetCmd.Flags().StringVar(&authProject, "project", "", "Project name")
	authSetCmd.Flags().StringVar(&authAreaPath, "area-path", "", `Area path below the project, e.g. "Team A"`)

	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authResetCmd)
	rootCmd.AddCommand(authCmd)
}

func authSetRun(cmd *cobra.Command) error {
	st, err := getSettings()
	if err != nil {
		return err
	}

	c := st.Credential()
	flags := cmd.Flags()
	if flags.Changed("token") {
		c.PersonalAccessToken = authToken
	}
	if flags.Changed("org") {
		c.Organization = authOrg
	}
	if flags.Changed("project") {
		c.Project = authProject
	}
	if flags.Changed("area-path") {
		c.AreaPath = authAreaPath
	}

	if dryRun {
		ui.DryRunMsg("Would save credential for %s/%s", c.Organization, c.Project)
		return nil
	}
	if err := st.SetCredential(context.Background(), c); err != nil {
		return err
	}
	ui.Success("Credential saved")
	svc, err := getService()
	if err != nil {
		return err
	}
	if !svc.Configured() {
		ui.Warning("Token, organization, and project are all required before creating work items")
	}
	return nil
}

func authShowRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	c := st.Credential()

	table := ui.Table([]string{"Field", "Value"})
	_ = table.Append([]string{"Token", api.MaskToken(c.PersonalAccessToken)})
	_ = table.Append([]string{"Organization", c.Organization})
	_ = table.Append([]string{"Project", c.Project})
	_ = table.Append([]string{"Area path", c.AreaPath})
	return table.Render()
}

func authStatusRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}

	if !svc.Configured() {
		ui.Warning("Not configured. Run 'ado auth set --token ... --org ... --project ...'")
		return nil
	}
	ui.Success("Configured")

	t, err := svc.Target("")
	if err != nil {
		ui.Warning("%s", workitems.Message(err))
		if c := len(st.ProjectConfigs()); c > 0 {
			ui.Info("%d project configurations available; pick one with 'ado target select <name>'", c)
		}
		return nil
	}
	ui.Info("Target: %s (%s)", output.Cyan(t.Label()), t.Kind)
	if t.Connection.AreaPath != "" {
		ui.Info("Area path: %s", t.Connection.AreaPath)
	}
	ui.VerboseLog("Batch policy: %s", svc.Policy())
	return nil
}

func authResetRun() error {
	st, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete the credential, %d project configurations, and %d story types",
			len(st.ProjectConfigs()), len(st.StoryTypes()))
		return nil
	}
	if err := st.Reset(context.Background()); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	ui.Success("All stored settings deleted")
	return nil
}
