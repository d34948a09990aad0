// Package cmd defines and implements the CLI commands for the inkpress executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/config"
	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/plugins/maintenance"
	"github.com/JakeFAU/inkpress/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// skipApp marks commands that run without building the application.
const skipApp = "skip-app"

// ModuleService is the module manager surface used by the module commands.
type ModuleService interface {
	List(typ modules.Type) []modules.Module
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	InstallZip(ctx context.Context, data []byte, want modules.Type) (modules.Module, error)
}

// Catalog installs modules from a remote repository.
type Catalog interface {
	Install(ctx context.Context, id string, inst modules.ZipInstaller) (modules.Module, error)
}

// TaskRunner runs maintenance tasks.
type TaskRunner interface {
	Statuses(ctx context.Context, blogID string) ([]maintenance.Status, error)
	Run(ctx context.Context, blogID, taskID string) (maintenance.Result, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error
	Logger() *zap.Logger
	Modules() ModuleService
	Catalog(typ modules.Type) (Catalog, bool)
	Maintenance() TaskRunner
	BlogID() string
}

// serverApp adapts *server.App to App.
type serverApp struct {
	*server.App
	blogID string
}

func (a serverApp) Modules() ModuleService  { return a.App.Modules() }
func (a serverApp) Maintenance() TaskRunner { return a.App.Maintenance() }
func (a serverApp) BlogID() string          { return a.blogID }

func (a serverApp) Catalog(typ modules.Type) (Catalog, bool) {
	c, ok := a.App.Catalog(typ)
	if !ok {
		return nil, false
	}
	return c, true
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{App: app, blogID: cfg.Blog.ID}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inkpress",
		Short: "A blog engine speaking the classic blogging XML-RPC protocols.",
		Long: `inkpress serves blogs over HTTP: public pages and feeds rendered from
theme templates, an XML-RPC endpoint for desktop and mobile editors
(Blogger, MetaWeblog, MovableType, WordPress, Pingback), and a JSON
admin API for plugins, themes and maintenance.`,
		SilenceUsage: true,

		// Build the application once the flags are parsed, before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipApp] != "" {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(context.Background()); err != nil {
					appInstance.Logger().Warn("close application", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); INKPRESS_* variables override it")

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newModulesCmd(),
		newMaintenanceCmd(),
		newHashPasswordCmd(),
	)
	return cmd
}

// resolveApp pulls the App stored by the root pre-run hook.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
