// Package models seeds bundled ML model assets into the shared model cache.
// Bootstrap is independent of the runtime migration: assets are copied once
// when absent and never versioned, and a failed asset degrades one feature
// instead of blocking startup.
package models

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxkit/voxd/internal/fsutil"
	"github.com/voxkit/voxd/internal/metrics"
)

// snapshotsDir is the inner directory hub-style model caches keep their
// revisions under. Its presence (non-empty) marks an asset as installed.
const snapshotsDir = "snapshots"

// Asset describes one bundled model: where it ships inside the bundle and
// which directory it occupies under the cache root.
type Asset struct {
	Name   string `mapstructure:"name"`
	Source string `mapstructure:"source"` // path relative to the bundle dir
	Dest   string `mapstructure:"dest"`   // path relative to the cache root
}

// AssetError records a single asset's copy failure.
type AssetError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Result summarizes a bootstrap pass. Partial success is a valid outcome;
// callers report Errors but do not treat them as fatal.
type Result struct {
	Copied  []string     `json:"copied"`
	Skipped []string     `json:"skipped"`
	Errors  []AssetError `json:"errors"`
}

// Bootstrapper copies configured model assets from the application bundle
// into a shared cache directory.
type Bootstrapper struct {
	bundleDir string
	cacheDir  string
	assets    []Asset
	log       *slog.Logger
}

func New(bundleDir, cacheDir string, assets []Asset, log *slog.Logger) *Bootstrapper {
	if log == nil {
		log = slog.Default()
	}
	return &Bootstrapper{bundleDir: bundleDir, cacheDir: cacheDir, assets: assets, log: log}
}

// Bootstrap walks every configured asset. Each asset is copied only when its
// source is bundled and its destination is not yet installed; a copy failure
// is recorded and the remaining assets are still attempted.
func (b *Bootstrapper) Bootstrap() Result {
	var res Result
	for _, a := range b.assets {
		source := filepath.Join(b.bundleDir, a.Source)
		dest := filepath.Join(b.cacheDir, a.Dest)

		if !fsutil.DirExists(source) {
			b.log.Debug("model not bundled on this platform", "model", a.Name)
			res.Skipped = append(res.Skipped, a.Name)
			continue
		}
		if installed(dest) {
			res.Skipped = append(res.Skipped, a.Name)
			continue
		}
		if err := fsutil.CopyTree(source, dest); err != nil {
			b.log.Warn("model bootstrap failed", "model", a.Name, "error", err)
			res.Errors = append(res.Errors, AssetError{Name: a.Name, Message: err.Error()})
			continue
		}
		b.log.Info("model bootstrapped", "model", a.Name, "dest", dest)
		res.Copied = append(res.Copied, a.Name)
	}
	metrics.AddModelAssetsCopied(len(res.Copied))
	return res
}

// installed reports whether a cached model already exists at dest. Hub-style
// layouts are judged by a non-empty snapshots subdirectory so that an
// interrupted copy (directory created, snapshots empty) still re-copies.
// Flat layouts count as installed once any entry exists.
func installed(dest string) bool {
	if !fsutil.DirExists(dest) {
		return false
	}
	snapshots := filepath.Join(dest, snapshotsDir)
	if fsutil.DirExists(snapshots) {
		return fsutil.DirHasEntries(snapshots)
	}
	if _, err := os.Stat(snapshots); err == nil {
		// snapshots exists but is not a directory; treat the layout as flat.
		return true
	}
	return fsutil.DirHasEntries(dest)
}
