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

package partition

import (
	"strings"
	"time"
)

// Descriptor is one resolved partition: the partition value and the physical
// key prefix that should contain its files.
type Descriptor struct {
	Value  string
	Prefix string
}

// PrefixFor builds the physical key prefix for one partition value under
// basePrefix. basePrefix must already be normalized (no trailing slash);
// an empty basePrefix places partitions at the bucket root.
func PrefixFor(s Schema, basePrefix, value string) string {
	part := s.Key() + "=" + value + "/"
	if basePrefix == "" {
		return part
	}
	return basePrefix + "/" + part
}

// PartitionsFor maps an inclusive date range to the ordered list of partition
// descriptors it spans. With no range at all it returns nil, meaning the
// caller should discover partitions dynamically. A start after end yields an
// empty list, not an error. Dates are calendar dates; no timezone conversion
// is applied.
func PartitionsFor(s Schema, basePrefix, start, end string) ([]Descriptor, error) {
	if start == "" && end == "" {
		return nil, nil
	}

	from, err := s.ParseValue(start)
	if err != nil {
		return nil, err
	}
	to, err := s.ParseValue(end)
	if err != nil {
		return nil, err
	}

	format := s.Granularity().Format()
	parts := []Descriptor{}
	for t := from; !t.After(to); t = advance(t, s.Granularity()) {
		v := t.Format(format)
		parts = append(parts, Descriptor{Value: v, Prefix: PrefixFor(s, basePrefix, v)})
	}
	return parts, nil
}

func advance(t time.Time, g Granularity) time.Time {
	if g == Daily {
		return t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 1, 0)
}

// ValueFromPath extracts the partition value from a physical path that
// contains a {key}={value} component for the schema's key, or "" if the path
// carries no such component. Both / and the local OS separator are accepted.
func ValueFromPath(s Schema, path string) string {
	marker := s.Key() + "="
	for _, comp := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if strings.HasPrefix(comp, marker) {
			return strings.TrimPrefix(comp, marker)
		}
	}
	return ""
}

// InRange reports whether a partition value falls inside the inclusive
// [start, end] range. Empty bounds are open on that side. Values that do not
// parse are never in range.
func InRange(s Schema, value, start, end string) bool {
	t, err := s.ParseValue(value)
	if err != nil {
		return false
	}
	if start != "" {
		if from, err := s.ParseValue(start); err != nil || t.Before(from) {
			return false
		}
	}
	if end != "" {
		if to, err := s.ParseValue(end); err != nil || t.After(to) {
			return false
		}
	}
	return true
}
