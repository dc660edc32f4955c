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

package querier

import (
	"context"

	"github.com/cardinalhq/billinglake/internal/logctx"
)

// Source names where one query call reads its data from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// choose picks the data source for one query call. Strict priority order:
// forceRemote wins, then a missing mirror root, then preferLocal off, then
// an empty mirror; only a populated mirror with preferLocal set routes
// local. Mirror state is read live, so the decision can flip between calls
// as data is downloaded. Local and remote files are never mixed in one call.
func (q *Querier) choose(ctx context.Context, forceRemote bool) Source {
	if forceRemote {
		return SourceRemote
	}
	if q.cfg.LocalRoot == "" {
		return SourceRemote
	}
	if !q.cfg.PreferLocal {
		return SourceRemote
	}

	fs, err := q.mirror.Discover(ctx, q.cfg)
	if err != nil {
		logctx.FromContext(ctx).Warn("mirror discovery failed, routing remote", "error", err)
		return SourceRemote
	}
	if len(fs.Files) == 0 {
		return SourceRemote
	}
	return SourceLocal
}
