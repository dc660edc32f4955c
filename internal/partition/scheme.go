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

// Package partition maps billing export schemas to their physical partition
// layout and turns date ranges into concrete partition descriptors.
package partition

import (
	"fmt"
	"time"
)

// Schema identifies one of the supported billing export formats. Each schema
// has a fixed partition key name and granularity; neither is ever inferred
// from the data.
type Schema string

const (
	// SchemaCostUsageV2 is the Cost and Usage Report 2.0 data export.
	SchemaCostUsageV2 Schema = "cost_usage_v2"

	// SchemaFocus1 is the FOCUS 1.0 data export.
	SchemaFocus1 Schema = "focus_1_0"

	// SchemaCostOptimizationHub is the Cost Optimization Hub recommendations export.
	SchemaCostOptimizationHub Schema = "cost_optimization_hub"

	// SchemaCarbonEmission is the carbon emissions data export.
	SchemaCarbonEmission Schema = "carbon_emission"
)

// Granularity is the calendar unit a schema is partitioned by.
type Granularity string

const (
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"
)

// Format returns the time layout a partition value must parse under.
func (g Granularity) Format() string {
	if g == Daily {
		return "2006-01-02"
	}
	return "2006-01"
}

type layout struct {
	key         string
	granularity Granularity
}

// Partition key names are case-sensitive and must match the export service's
// on-disk layout exactly.
var layouts = map[Schema]layout{
	SchemaCostUsageV2:         {key: "BILLING_PERIOD", granularity: Monthly},
	SchemaFocus1:              {key: "billing_period", granularity: Monthly},
	SchemaCostOptimizationHub: {key: "collection_date", granularity: Daily},
	SchemaCarbonEmission:      {key: "usage_month", granularity: Monthly},
}

// ParseSchema converts a user-supplied schema name into a Schema.
func ParseSchema(s string) (Schema, error) {
	sc := Schema(s)
	if _, ok := layouts[sc]; !ok {
		return "", fmt.Errorf("unknown export schema %q", s)
	}
	return sc, nil
}

// Valid reports whether s is one of the supported schemas.
func (s Schema) Valid() bool {
	_, ok := layouts[s]
	return ok
}

// Key returns the partition key name for the schema.
func (s Schema) Key() string {
	return layouts[s].key
}

// Granularity returns the partition granularity for the schema.
func (s Schema) Granularity() Granularity {
	return layouts[s].granularity
}

// InvalidDateFormatError indicates a date string that does not parse under
// the schema's required layout.
type InvalidDateFormatError struct {
	Value    string
	Expected string
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("invalid date %q: expected format %s", e.Value, e.Expected)
}

// ParseValue validates a partition value string against the schema's
// granularity and returns the calendar date it names.
func (s Schema) ParseValue(v string) (time.Time, error) {
	format := s.Granularity().Format()
	t, err := time.Parse(format, v)
	if err != nil {
		return time.Time{}, &InvalidDateFormatError{Value: v, Expected: format}
	}
	return t, nil
}
