package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxd"
)

// Exit codes the host shell dispatches on. Code 3 means the user must be
// offered a full-installer download; retrying voxd will not help.
const (
	exitFailure             = 1
	exitStale               = 2 // check: environment needs migration
	exitFullInstallRequired = 3
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, voxd.ErrFullInstallRequired) {
			os.Exit(exitFullInstallRequired)
		}
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	checkFlags := &CheckFlags{}

	cmd := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(cmd, runFlags),
		createMigrateCommand(cmd),
		createCheckCommand(cmd, checkFlags),
		createModelsCommand(cmd),
	)
	return root
}

func createRootCommand(f *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "voxd",
		Short:         "Supervisor for the Vox transcription backend",
		Long:          "voxd migrates the bundled Python runtime into the user data directory,\nseeds model caches, and runs the transcription backend as a supervised,\nhealth-checked child process.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.ConfigPath, "config", "voxd.toml", "path to the voxd TOML config")
	return root
}

func createRunCommand(c command, f *RunFlags) *cobra.Command {
	cc := &cobra.Command{
		Use:   "run",
		Short: "Migrate resources, then start and supervise the backend",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Run(*f)
		},
	}
	cc.Flags().BoolVar(&f.SkipModels, "skip-models", false, "skip the model cache bootstrap")
	return cc
}

func createMigrateCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run the resource migration only",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Migrate()
		},
	}
}

func createCheckCommand(c command, f *CheckFlags) *cobra.Command {
	cc := &cobra.Command{
		Use:   "check",
		Short: "Report whether the migrated environment matches the bundle",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Check(*f)
		},
	}
	cc.Flags().BoolVarP(&f.Quiet, "quiet", "q", false, "no output, exit code only")
	return cc
}

func createModelsCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Bootstrap bundled model assets into the model cache",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Models()
		},
	}
}
