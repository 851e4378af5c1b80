package main

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	SkipModels bool // skip model bootstrap after migration
}

// CheckFlags holds flags for the check command.
type CheckFlags struct {
	Quiet bool // exit code only, no output
}
