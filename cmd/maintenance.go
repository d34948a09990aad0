package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMaintenanceCmd groups the maintenance task commands.
func newMaintenanceCmd() *cobra.Command {
	var blogID string
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Inspect and run maintenance tasks",
	}
	cmd.PersistentFlags().StringVar(&blogID, "blog", "", "blog id (defaults to the configured blog)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List maintenance tasks and when they last ran",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			statuses, err := appInstance.Maintenance().Statuses(cmd.Context(), pickBlog(appInstance, blogID))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLAST RUN\tDUE\tNAME")
			for _, s := range statuses {
				last := "never"
				if !s.LastRun.IsZero() {
					last = s.LastRun.Format(time.RFC3339)
				}
				due := ""
				if s.Expired {
					due = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, last, due, s.Name)
			}
			return tw.Flush()
		},
	}

	run := &cobra.Command{
		Use:   "run <task>...",
		Short: "Run one or more maintenance tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			id := pickBlog(appInstance, blogID)
			for _, task := range args {
				res, err := appInstance.Maintenance().Run(cmd.Context(), id, task)
				if err != nil {
					return fmt.Errorf("task %s: %w", task, err)
				}
				appInstance.Logger().Info("maintenance task finished",
					zap.String("task", task),
					zap.String("blog", id),
					zap.String("duration", res.Duration),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", task, res.Message)
			}
			return nil
		},
	}

	cmd.AddCommand(list, run)
	return cmd
}

func pickBlog(app App, flag string) string {
	if flag != "" {
		return flag
	}
	return app.BlogID()
}
