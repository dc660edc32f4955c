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

package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/discovery"
	"github.com/cardinalhq/billinglake/internal/partition"
)

func mirroredConfig(t *testing.T, root string, opts ...config.Option) *config.ExportConfig {
	t.Helper()
	opts = append(opts, config.WithLocalMirror(root, true))
	cfg, err := config.New("exports", "cur2", partition.SchemaCostUsageV2, opts...)
	require.NoError(t, err)
	return cfg
}

func seedMirror(t *testing.T, cfg *config.ExportConfig, relPaths ...string) {
	t.Helper()
	for _, rel := range relPaths {
		full := filepath.Join(DatasetDir(cfg), filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("data"), 0o644))
	}
}

func TestDiscover_MissingRootIsEmpty(t *testing.T) {
	cfg := mirroredConfig(t, filepath.Join(t.TempDir(), "never-written"))

	fs, err := New().Discover(context.Background(), cfg)
	require.NoError(t, err, "a missing mirror root is not an error")
	assert.Empty(t, fs.Files)
}

func TestDiscover_PartitionFilter(t *testing.T) {
	cfg := mirroredConfig(t, t.TempDir(), config.WithDateRange("2025-07", "2025-08"))
	seedMirror(t, cfg,
		"BILLING_PERIOD=2025-06/part-00001.parquet",
		"BILLING_PERIOD=2025-07/part-00001.parquet",
		"BILLING_PERIOD=2025-08/part-00001.parquet",
		"BILLING_PERIOD=2025-08/manifest.json",
	)

	fs, err := New().Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, fs.Files, 2, "out-of-range partitions and sidecar files are excluded")
	assert.Equal(t, discovery.FormatParquet, fs.Format)
}

func TestDiscover_NoRangeTakesAllPartitions(t *testing.T) {
	cfg := mirroredConfig(t, t.TempDir())
	seedMirror(t, cfg,
		"BILLING_PERIOD=2025-06/part-00001.parquet",
		"BILLING_PERIOD=2025-07/part-00001.parquet",
	)

	fs, err := New().Discover(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, fs.Files, 2)
}

func TestStatus(t *testing.T) {
	cfg := mirroredConfig(t, t.TempDir())

	empty, err := New().Status(cfg)
	require.NoError(t, err)
	assert.False(t, empty.HasData)
	assert.Zero(t, empty.FileCount)

	seedMirror(t, cfg,
		"BILLING_PERIOD=2025-07/part-00001.parquet",
		"BILLING_PERIOD=2025-07/part-00002.parquet",
	)

	st, err := New().Status(cfg)
	require.NoError(t, err)
	assert.True(t, st.HasData)
	assert.Equal(t, 2, st.FileCount)
	assert.Equal(t, int64(8), st.TotalBytes)
	assert.False(t, st.LastUpdated.IsZero())
}

func TestClear_RequiresConfirmation(t *testing.T) {
	cfg := mirroredConfig(t, t.TempDir())
	seedMirror(t, cfg, "BILLING_PERIOD=2025-07/part-00001.parquet")

	err := New().Clear(context.Background(), cfg, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	st, err := New().Status(cfg)
	require.NoError(t, err)
	assert.True(t, st.HasData, "unconfirmed clear must not delete anything")

	require.NoError(t, New().Clear(context.Background(), cfg, true))
	st, err = New().Status(cfg)
	require.NoError(t, err)
	assert.False(t, st.HasData)
}

func TestLocalPathFor_ReproducesRemoteHierarchy(t *testing.T) {
	cfg := mirroredConfig(t, "/cache")
	got := LocalPathFor(cfg, "cur2/BILLING_PERIOD=2025-07/part-00001.parquet")
	want := filepath.Join("/cache", "exports", "cur2", "BILLING_PERIOD=2025-07", "part-00001.parquet")
	assert.Equal(t, want, got)
}

func TestKeyFromURI(t *testing.T) {
	key, err := keyFromURI("exports", "s3://exports/cur2/BILLING_PERIOD=2025-07/f.parquet")
	require.NoError(t, err)
	assert.Equal(t, "cur2/BILLING_PERIOD=2025-07/f.parquet", key)

	_, err = keyFromURI("exports", "s3://other-bucket/f.parquet")
	assert.Error(t, err)
}
