// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package mirror manages the local replica of a remote export dataset. The
// mirror reproduces the remote bucket/prefix/partition hierarchy verbatim on
// disk, so partition filtering reuses the same path-parsing rules as remote
// discovery.
package mirror

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/discovery"
	"github.com/cardinalhq/billinglake/internal/logctx"
	"github.com/cardinalhq/billinglake/internal/partition"
)

// ErrConfirmationRequired is returned by Clear when the caller did not pass
// the explicit confirmation flag. Deleting a mirror is never the default.
var ErrConfirmationRequired = errors.New("mirror clear requires explicit confirmation")

// Status describes the cached state of one dataset's mirror.
type Status struct {
	HasData     bool
	FileCount   int
	TotalBytes  int64
	LastUpdated time.Time
}

// Mirror reads and maintains the local replica rooted at the config's
// LocalRoot.
type Mirror struct{}

func New() *Mirror {
	return &Mirror{}
}

// DatasetDir is the local directory mirroring the config's bucket/prefix.
func DatasetDir(cfg *config.ExportConfig) string {
	return filepath.Join(cfg.LocalRoot, cfg.Bucket, filepath.FromSlash(cfg.Prefix))
}

// LocalPathFor maps a remote object key to its mirrored local path.
func LocalPathFor(cfg *config.ExportConfig, key string) string {
	return filepath.Join(cfg.LocalRoot, cfg.Bucket, filepath.FromSlash(key))
}

// Discover walks the mirror and returns the cached files matching the
// config's partition filter. A missing mirror root is not an error; it
// yields an empty set, letting the router fall back to remote.
func (m *Mirror) Discover(ctx context.Context, cfg *config.ExportConfig) (*discovery.FileSet, error) {
	set, skipped, err := m.walkFiles(cfg)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logctx.FromContext(ctx).Warn("skipped mirrored files with unrecognized extensions",
			"count", skipped, "root", DatasetDir(cfg))
	}
	return set, nil
}

// Status reports cache presence, size, and freshness for the dataset.
func (m *Mirror) Status(cfg *config.ExportConfig) (*Status, error) {
	st := &Status{}
	root := DatasetDir(cfg)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.FileCount++
		st.TotalBytes += info.Size()
		if info.ModTime().After(st.LastUpdated) {
			st.LastUpdated = info.ModTime()
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, err
	}
	st.HasData = st.FileCount > 0
	return st, nil
}

// Clear deletes the dataset's mirror subtree. It refuses to do anything
// without the confirmation flag.
func (m *Mirror) Clear(ctx context.Context, cfg *config.ExportConfig, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	root := DatasetDir(cfg)
	logctx.FromContext(ctx).Info("clearing local mirror", "root", root)
	return os.RemoveAll(root)
}

func (m *Mirror) walkFiles(cfg *config.ExportConfig) (*discovery.FileSet, int, error) {
	var matched []string
	skipped := 0

	root := DatasetDir(cfg)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		value := partition.ValueFromPath(cfg.Schema, path)
		if value == "" {
			return nil
		}
		if cfg.HasDateRange() && !partition.InRange(cfg.Schema, value, cfg.DateStart, cfg.DateEnd) {
			return nil
		}
		if discovery.FormatForPath(path) == discovery.FormatUnknown {
			skipped++
			return nil
		}
		matched = append(matched, path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, 0, err
	}

	set := &discovery.FileSet{}
	for _, path := range matched {
		format := discovery.FormatForPath(path)
		if set.Format == discovery.FormatUnknown {
			set.Format = format
		} else if set.Format != format {
			return nil, 0, &discovery.MixedFormatError{
				Have: string(set.Format), Got: string(format), Location: path,
			}
		}
		set.Files = append(set.Files, path)
	}
	return set, skipped, nil
}
