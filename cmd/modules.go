package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/inkpress/internal/modules"
)

// newModulesCmd groups plugin and theme management.
func newModulesCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Manage plugins and themes",
	}
	cmd.PersistentFlags().StringVar(&typ, "type", string(modules.TypePlugin), "module type: plugin or theme")

	parseType := func() (modules.Type, error) {
		switch t := modules.Type(typ); t {
		case modules.TypePlugin, modules.TypeTheme:
			return t, nil
		default:
			return "", fmt.Errorf("unknown module type %q", typ)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			t, err := parseType()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tSTATE\tNAME")
			for _, m := range appInstance.Modules().List(t) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Version, moduleState(m), m.Name)
			}
			return tw.Flush()
		},
	}

	toggle := func(use, short string, op func(cmd *cobra.Command, svc ModuleService, id string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := op(cmd, appInstance.Modules(), args[0]); err != nil {
					return fmt.Errorf("%s %s: %w", use, args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s done\n", args[0], use)
				return nil
			},
		}
	}

	install := &cobra.Command{
		Use:   "install <package.zip|id>",
		Short: "Install a module from a zip package or the remote repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			t, err := parseType()
			if err != nil {
				return err
			}
			mods := appInstance.Modules()
			var mod modules.Module
			if strings.HasSuffix(strings.ToLower(args[0]), ".zip") {
				data, rerr := os.ReadFile(args[0])
				if rerr != nil {
					return fmt.Errorf("read package: %w", rerr)
				}
				mod, err = mods.InstallZip(cmd.Context(), data, t)
			} else {
				catalog, ok := appInstance.Catalog(t)
				if !ok {
					return errors.New("no repository configured for " + string(t) + "s")
				}
				mod, err = catalog.Install(cmd.Context(), args[0], mods)
			}
			if err != nil {
				return fmt.Errorf("install %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s\n", mod.ID, mod.Version)
			return nil
		},
	}

	cmd.AddCommand(
		list,
		toggle("activate", "Activate a module", func(cmd *cobra.Command, svc ModuleService, id string) error {
			return svc.Activate(cmd.Context(), id)
		}),
		toggle("deactivate", "Deactivate a module", func(cmd *cobra.Command, svc ModuleService, id string) error {
			return svc.Deactivate(cmd.Context(), id)
		}),
		toggle("delete", "Delete a module from disk", func(cmd *cobra.Command, svc ModuleService, id string) error {
			return svc.Delete(cmd.Context(), id)
		}),
		install,
	)
	return cmd
}

func moduleState(m modules.Module) string {
	switch {
	case len(m.Missing) > 0:
		return "missing " + strings.Join(m.Missing, ",")
	case m.Enabled:
		return "active"
	default:
		return "inactive"
	}
}
