// Package prompt assembles the model input: system frame, persona voice,
// driver blocks, retrieval items, thread state, and the user message. It
// also loads the on-disk driver-block bundle and persona profile.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// bundleFormatConstraint is the supported bundle format range. Bundles
// outside it are rejected at load rather than silently misparsed.
var bundleFormatConstraint = semver.MustParse("1.0.0")

// BundleLoader reads driver-block bundles from disk with an mtime-keyed
// cache. Refresh under read contention is last-write-wins.
type BundleLoader struct {
	mu     sync.Mutex
	path   string
	mtime  time.Time
	cached *contracts.DriverBlockBundle
}

func NewBundleLoader(path string) *BundleLoader {
	return &BundleLoader{path: path}
}

// Load returns the current bundle, re-reading the file only when its
// mtime moved. An empty path yields an empty bundle.
func (l *BundleLoader) Load() (*contracts.DriverBlockBundle, error) {
	if l.path == "" {
		return &contracts.DriverBlockBundle{FormatVersion: "1.0.0"}, nil
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("driver bundle stat %s: %w", l.path, err)
	}

	l.mu.Lock()
	if l.cached != nil && info.ModTime().Equal(l.mtime) {
		b := l.cached
		l.mu.Unlock()
		return b, nil
	}
	l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("driver bundle read %s: %w", l.path, err)
	}
	var bundle contracts.DriverBlockBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("driver bundle parse %s: %w", l.path, err)
	}
	if err := checkFormatVersion(bundle.FormatVersion); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cached = &bundle
	l.mtime = info.ModTime()
	l.mu.Unlock()
	return &bundle, nil
}

// checkFormatVersion accepts only bundles on the supported major version.
func checkFormatVersion(v string) error {
	if v == "" {
		return fmt.Errorf("driver bundle: missing format_version")
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("driver bundle: bad format_version %q: %w", v, err)
	}
	if parsed.Major() != bundleFormatConstraint.Major() {
		return fmt.Errorf("driver bundle: unsupported format_version %q (want major %d)", v, bundleFormatConstraint.Major())
	}
	return nil
}
