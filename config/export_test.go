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

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/billinglake/internal/partition"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New("billing-exports", "/exports/cur2/", partition.SchemaCostUsageV2)
	require.NoError(t, err)
	assert.Equal(t, "billing-exports", cfg.Bucket)
	assert.Equal(t, "exports/cur2", cfg.Prefix, "prefix must be normalized")
	assert.Equal(t, "billing_data", cfg.TableName)
	assert.IsType(t, DefaultChainAuth{}, cfg.Auth)
	assert.False(t, cfg.HasDateRange())
}

func TestNew_DateRangeValidatedAtConstruction(t *testing.T) {
	_, err := New("b", "p", partition.SchemaCostUsageV2,
		WithDateRange("2025-07-01", "2025-07-31"))
	var dateErr *partition.InvalidDateFormatError
	require.True(t, errors.As(err, &dateErr))
	assert.Equal(t, "2006-01", dateErr.Expected)
}

func TestNew_DailySchemaDateRange(t *testing.T) {
	cfg, err := New("b", "p", partition.SchemaCostOptimizationHub,
		WithDateRange("2025-07-01", "2025-07-31"))
	require.NoError(t, err)
	parts, err := cfg.Partitions()
	require.NoError(t, err)
	assert.Len(t, parts, 31)
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		schema partition.Schema
		opts   []Option
	}{
		{"empty bucket", "", partition.SchemaCostUsageV2, nil},
		{"unknown schema", "b", partition.Schema("csv"), nil},
		{"half a date range", "b", partition.SchemaCostUsageV2,
			[]Option{WithDateRange("2025-07", "")}},
		{"prefer local without root", "b", partition.SchemaCostUsageV2,
			[]Option{WithLocalMirror("", true)}},
		{"empty table name", "b", partition.SchemaCostUsageV2,
			[]Option{WithTableName("")}},
		{"explicit auth missing secret", "b", partition.SchemaCostUsageV2,
			[]Option{WithAuth(ExplicitAuth{AccessKeyID: "AKIA..."})}},
		{"profile auth without name", "b", partition.SchemaCostUsageV2,
			[]Option{WithAuth(ProfileAuth{})}},
		{"assumed role without ARN", "b", partition.SchemaCostUsageV2,
			[]Option{WithAuth(AssumedRoleAuth{ExternalID: "x"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.bucket, "p", tt.schema, tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestNew_AuthVariants(t *testing.T) {
	for _, auth := range []AuthSpec{
		ExplicitAuth{AccessKeyID: "k", SecretAccessKey: "s"},
		ProfileAuth{Name: "billing"},
		AssumedRoleAuth{RoleARN: "arn:aws:iam::123456789012:role/billing-read"},
		DefaultChainAuth{},
	} {
		cfg, err := New("b", "p", partition.SchemaFocus1, WithAuth(auth))
		require.NoError(t, err)
		assert.Equal(t, auth, cfg.Auth)
	}
}

func TestPartitions_NoRangeIsNil(t *testing.T) {
	cfg, err := New("b", "exports", partition.SchemaCarbonEmission)
	require.NoError(t, err)
	parts, err := cfg.Partitions()
	require.NoError(t, err)
	assert.Nil(t, parts)
}
