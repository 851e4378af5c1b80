package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxkit/voxd/internal/fsutil"
	"github.com/voxkit/voxd/internal/metrics"
)

// ErrFullInstallRequired signals that the bundle ships without the runtime
// (a stripped update) and no usable prior migration exists. This cannot be
// resolved automatically; the host must offer the user a download-or-quit
// choice and abort startup.
var ErrFullInstallRequired = errors.New("runtime missing from bundle and no usable prior copy; full reinstall required")

// IsFullInstallRequired reports whether err is the unrecoverable
// stripped-update condition.
func IsFullInstallRequired(err error) bool { return errors.Is(err, ErrFullInstallRequired) }

// Outcome describes what a migration pass did.
type Outcome string

const (
	OutcomeMigrated Outcome = "migrated" // staged copy swapped in
	OutcomeReused   Outcome = "reused"   // stripped update, prior copy kept
	OutcomeCurrent  Outcome = "current"  // prior copy matches the bundle fingerprint
)

// Resource maps a secondary bundled resource (codec tools, accelerator
// libraries) to its destination. Secondary resources are copied once, with
// no versioning, and failures do not block startup.
type Resource struct {
	Name   string
	Source string // absolute path inside the bundle
	Dest   string // absolute path inside the user data root
}

// Options configures a Migrator.
type Options struct {
	BundleDir   string
	UserDataDir string
	AppVersion  string

	RuntimeDir    string // primary resource directory name, e.g. "python-runtime"
	RuntimeBinary string // interpreter path relative to the runtime dir, e.g. "bin/python3"
	StagingSuffix string // appended to the destination for the staging dir
	BundleMarker  string // substring identifying symlink targets inside an app bundle
	Manifests     []string
	DownloadURL   string
	Secondary     []Resource

	Logger *slog.Logger
}

// Migrator relocates heavy bundled resources into the writable user data
// root. The primary resource (the language runtime) is versioned via the
// dependency fingerprint; migration is staged into a sibling directory and
// installed with a remove-then-rename swap so the live destination is never
// observed partially written.
type Migrator struct {
	opts    Options
	tracker Tracker
	log     *slog.Logger
}

// New builds a Migrator. A nil Options.Logger falls back to slog.Default().
func New(opts Options) *Migrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{
		opts: opts,
		tracker: Tracker{
			BundleDir:   opts.BundleDir,
			UserDataDir: opts.UserDataDir,
			Manifests:   opts.Manifests,
			AppVersion:  opts.AppVersion,
		},
		log: log,
	}
}

func (m *Migrator) runtimeSource() string {
	return filepath.Join(m.opts.BundleDir, m.opts.RuntimeDir)
}

func (m *Migrator) runtimeDest() string {
	return filepath.Join(m.opts.UserDataDir, m.opts.RuntimeDir)
}

func (m *Migrator) stagingDir() string {
	return m.runtimeDest() + m.opts.StagingSuffix
}

func (m *Migrator) runtimeBinaryPath() string {
	return filepath.Join(m.runtimeDest(), m.opts.RuntimeBinary)
}

// Run executes one migration pass. It is called on every launch, before the
// backend is started.
func (m *Migrator) Run() (Outcome, error) {
	dest := m.runtimeDest()
	staging := m.stagingDir()

	// An existing staging dir is guaranteed incomplete: the swap removes it
	// on success, so a survivor means the previous run died mid-copy.
	if fsutil.DirExists(staging) {
		m.log.Warn("removing orphaned staging directory", "path", staging)
		if err := os.RemoveAll(staging); err != nil {
			return "", fmt.Errorf("remove orphaned staging dir: %w", err)
		}
	}

	bundled := fsutil.DirExists(m.runtimeSource())
	destExists := fsutil.DirExists(dest)
	broken := destExists && PythonSymlinkedToBundle(m.runtimeBinaryPath(), m.opts.BundleMarker)
	if broken {
		m.log.Warn("migrated runtime symlinks into the app bundle; forcing re-migration",
			"binary", m.runtimeBinaryPath())
	}

	if !bundled {
		// Stripped update: reuse the prior migration or fail loudly.
		if destExists && !broken {
			m.log.Info("runtime not bundled; reusing prior migration", "path", dest)
			metrics.IncMigration(string(OutcomeReused))
			return OutcomeReused, nil
		}
		return "", fmt.Errorf("%w (download: %s)", ErrFullInstallRequired, m.opts.DownloadURL)
	}

	if destExists && !broken {
		current, err := m.tracker.Current()
		if err != nil {
			return "", err
		}
		if current {
			metrics.IncMigration(string(OutcomeCurrent))
			return OutcomeCurrent, nil
		}
	}

	if err := m.migratePrimary(dest, staging); err != nil {
		return "", err
	}
	m.migrateSecondary()

	hash, err := m.tracker.ComputeDepsHash()
	if err != nil {
		return "", err
	}
	if err := m.tracker.WriteMarkers(hash); err != nil {
		return "", err
	}
	m.log.Info("runtime migration complete", "dest", dest, "deps_hash", hash)
	metrics.IncMigration(string(OutcomeMigrated))
	return OutcomeMigrated, nil
}

// migratePrimary stages a full copy of the bundled runtime and swaps it onto
// the destination. Symlinks are dereferenced during the copy so the result
// cannot dangle when a later update replaces the bundle.
//
// The swap is remove-then-rename: two syscalls, not one. A crash between
// them leaves no destination, which the next launch treats as "no prior
// copy" and re-migrates.
func (m *Migrator) migratePrimary(dest, staging string) error {
	m.log.Info("staging runtime copy", "source", m.runtimeSource(), "staging", staging)
	if err := fsutil.CopyTree(m.runtimeSource(), staging); err != nil {
		return fmt.Errorf("stage runtime copy: %w", err)
	}
	// Archive extraction does not reliably preserve the exec bit everywhere.
	stagedBinary := filepath.Join(staging, m.opts.RuntimeBinary)
	if fsutil.FileExists(stagedBinary) {
		if err := os.Chmod(stagedBinary, 0o755); err != nil {
			return fmt.Errorf("fix interpreter exec bit: %w", err)
		}
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove prior runtime: %w", err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("install staged runtime: %w", err)
	}
	return nil
}

// migrateSecondary copies each non-primary resource only when its source
// exists and its destination does not. Failures are logged and skipped; a
// missing codec toolchain degrades a feature, it does not block startup.
func (m *Migrator) migrateSecondary() {
	for _, r := range m.opts.Secondary {
		if !fsutil.DirExists(r.Source) || fsutil.DirExists(r.Dest) {
			continue
		}
		if err := fsutil.CopyTree(r.Source, r.Dest); err != nil {
			m.log.Warn("secondary resource copy failed", "resource", r.Name, "error", err)
			continue
		}
		m.log.Info("secondary resource copied", "resource", r.Name, "dest", r.Dest)
	}
}

// EnvironmentCurrent re-runs only the fingerprint comparison, with no
// copying, for callers that want staleness without migration cost.
func (m *Migrator) EnvironmentCurrent() (bool, error) {
	return m.tracker.Current()
}

// PythonSymlinkedToBundle reports whether the interpreter at path is a
// symbolic link whose target points back into an app bundle. An earlier
// migration strategy preserved such links, which dangle as soon as an update
// replaces the bundle; a true result forces re-migration regardless of the
// fingerprint check. Regular files and links pointing elsewhere return false.
func PythonSymlinkedToBundle(path, marker string) bool {
	if marker == "" {
		return false
	}
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := os.Readlink(path)
	if err != nil {
		return false
	}
	return strings.Contains(target, marker)
}
