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

package discovery

import (
	"fmt"
	"strings"
)

// PartitionsNotFoundError is raised when a date range was requested and the
// union of all partition listings came back empty. Returning zero rows
// instead would be indistinguishable from a correct empty dataset, so this
// is a hard failure. Prefixes enumerates every physical location that was
// expected, one per requested partition.
type PartitionsNotFoundError struct {
	Prefixes []string
}

func (e *PartitionsNotFoundError) Error() string {
	return fmt.Sprintf("no export files found under any of the %d expected partition locations:\n  %s",
		len(e.Prefixes), strings.Join(e.Prefixes, "\n  "))
}

// NoDataFoundError is raised when no date range was given and a full scan of
// the dataset root found no readable files at all.
type NoDataFoundError struct {
	Root string
}

func (e *NoDataFoundError) Error() string {
	return fmt.Sprintf("no export files found anywhere under %s", e.Root)
}

// MixedFormatError indicates a listing that mixes file formats; one table
// registration must be backed by a single format.
type MixedFormatError struct {
	Have     string
	Got      string
	Location string
}

func (e *MixedFormatError) Error() string {
	return fmt.Sprintf("mixed file formats in one file set: have %s, found %s at %s",
		e.Have, e.Got, e.Location)
}

// ErrEmptyFileSet guards table registration against empty inputs; discovery
// should have failed with a diagnostic error before this is reachable.
var ErrEmptyFileSet = fmt.Errorf("file set is empty")
