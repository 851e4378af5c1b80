package config

import "path/filepath"

// Layout is the resolved process-launch surface for the backend: where the
// interpreter lives, where it runs, and what the binary is called. Keeping
// this behind one resolution step keeps the supervisor and migrator free of
// packaged-vs-development branching.
type Layout struct {
	ExecPath   string // interpreter to exec
	WorkDir    string // backend working directory
	BinaryName string // interpreter basename (or PATH lookup name in dev mode)
	Args       []string
}

// ResolveLayout maps the configuration onto a concrete launch layout.
//
// Development layout: the configured interpreter (PATH lookup allowed) run
// from the source workdir. Packaged layout: the migrated runtime interpreter
// under user_data_dir, run from the backend directory inside the bundle.
func ResolveLayout(c *Config) Layout {
	if c.DevMode {
		workDir := c.Backend.DevWorkDir
		if workDir == "" {
			workDir = "."
		}
		return Layout{
			ExecPath:   c.Backend.DevPython,
			WorkDir:    workDir,
			BinaryName: filepath.Base(c.Backend.DevPython),
			Args:       append([]string{c.Backend.Script}, c.Backend.Args...),
		}
	}
	execPath := filepath.Join(c.RuntimeDest(), c.Migration.RuntimeBinary)
	return Layout{
		ExecPath:   execPath,
		WorkDir:    filepath.Join(c.Paths.BundleDir, "backend"),
		BinaryName: filepath.Base(execPath),
		Args:       append([]string{c.Backend.Script}, c.Backend.Args...),
	}
}
