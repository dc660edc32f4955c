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

// Package discovery resolves an export config against physical storage and
// produces the ordered file sets a query runs over.
package discovery

import (
	"sort"
	"strings"
)

// FileFormat classifies a discovered file by how the SQL engine must read it.
type FileFormat string

const (
	// FormatUnknown marks files whose extension maps to no known reader.
	FormatUnknown FileFormat = ""

	// FormatParquet is columnar parquet.
	FormatParquet FileFormat = "parquet"

	// FormatCSV is delimited text, possibly compressed.
	FormatCSV FileFormat = "csv"
)

// FormatForPath infers a file's format from its extension. Unknown
// extensions yield FormatUnknown; discovery skips them rather than failing,
// since billing exports ship json manifests and sidecar metadata alongside
// the data files.
func FormatForPath(p string) FileFormat {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".csv"),
		strings.HasSuffix(lower, ".csv.gz"),
		strings.HasSuffix(lower, ".csv.zst"):
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// FileSet is an ordered, de-duplicated list of physical file locations, all
// sharing one format. Remote sets hold s3:// URIs; local sets hold absolute
// filesystem paths.
type FileSet struct {
	Files  []string
	Format FileFormat
}

// builder accumulates discovered files, enforcing the single-format
// invariant and counting skipped unknown extensions.
type builder struct {
	format  FileFormat
	files   map[string]struct{}
	skipped int
}

func newBuilder() *builder {
	return &builder{files: make(map[string]struct{})}
}

func (b *builder) add(location string) error {
	format := FormatForPath(location)
	if format == FormatUnknown {
		b.skipped++
		return nil
	}
	if b.format == FormatUnknown {
		b.format = format
	} else if b.format != format {
		return &MixedFormatError{Have: string(b.format), Got: string(format), Location: location}
	}
	b.files[location] = struct{}{}
	return nil
}

func (b *builder) build() *FileSet {
	files := make([]string, 0, len(b.files))
	for f := range b.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return &FileSet{Files: files, Format: b.format}
}
