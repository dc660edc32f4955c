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

// Package querier federates ad-hoc SQL over partitioned billing exports.
// One Querier wraps one export dataset; every Query call routes between the
// local mirror and remote storage, discovers the concrete file list,
// registers it (plus any auxiliary reference tables) in a fresh execution
// context, runs the SQL, and tears the context down.
package querier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/auxdata"
	"github.com/cardinalhq/billinglake/internal/awsclient"
	"github.com/cardinalhq/billinglake/internal/discovery"
	"github.com/cardinalhq/billinglake/internal/duckdbx"
	"github.com/cardinalhq/billinglake/internal/logctx"
	"github.com/cardinalhq/billinglake/internal/mirror"
)

// Querier is the caller-facing handle over one export dataset. Safe for
// concurrent use; each Query call owns its execution context end-to-end.
type Querier struct {
	cfg    *config.ExportConfig
	aws    *awsclient.Manager
	mirror *mirror.Mirror
	tracer trace.Tracer

	auxSources []auxdata.Source
	auxMat     *auxdata.Materializer

	downloadConcurrency int

	// test seam; production wiring builds an S3Lister lazily
	lister discovery.ObjectLister

	mu sync.Mutex
	s3 *awsclient.S3Client
}

// QuerierOption customizes a Querier.
type QuerierOption func(*Querier)

// WithAuxiliarySources registers reference datasets (pricing, savings-plan
// rates) to expose alongside the primary table. Registration is best-effort;
// a source failure never blocks the primary query.
func WithAuxiliarySources(srcs ...auxdata.Source) QuerierOption {
	return func(q *Querier) {
		q.auxSources = append(q.auxSources, srcs...)
	}
}

// WithAuxiliaryCacheDir overrides where materialized auxiliary parquet files
// are cached.
func WithAuxiliaryCacheDir(dir string) QuerierOption {
	return func(q *Querier) {
		q.auxMat = auxdata.NewMaterializer(dir, auxdata.DefaultCacheMaxAge)
	}
}

// WithDownloadConcurrency bounds the mirror download worker pool.
func WithDownloadConcurrency(n int) QuerierOption {
	return func(q *Querier) {
		q.downloadConcurrency = n
	}
}

// WithObjectLister substitutes the storage listing implementation.
func WithObjectLister(lister discovery.ObjectLister) QuerierOption {
	return func(q *Querier) {
		q.lister = lister
	}
}

// New builds a Querier for the dataset. No storage I/O happens here; the
// first Query call performs discovery.
func New(cfg *config.ExportConfig, opts ...QuerierOption) *Querier {
	q := &Querier{
		cfg:                 cfg,
		aws:                 awsclient.NewManager(),
		mirror:              mirror.New(),
		tracer:              otel.Tracer("github.com/cardinalhq/billinglake/querier"),
		downloadConcurrency: mirror.DefaultDownloadConcurrency,
		auxMat: auxdata.NewMaterializer(
			filepath.Join(os.TempDir(), "billinglake", "aux"), auxdata.DefaultCacheMaxAge),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type queryOptions struct {
	forceRemote bool
}

// QueryOption adjusts one Query call.
type QueryOption func(*queryOptions)

// ForceRemote bypasses the local mirror for this call.
func ForceRemote() QueryOption {
	return func(o *queryOptions) {
		o.forceRemote = true
	}
}

// Query runs one SQL statement against the dataset. Exactly one discovery
// and one execution attempt happen per call; retries belong to the caller.
func (q *Querier) Query(ctx context.Context, sqlText string, opts ...QueryOption) (*duckdbx.QueryResult, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx = logctx.WithAttrs(ctx, "table", q.cfg.TableName, "schema", string(q.cfg.Schema))
	ctx, span := q.tracer.Start(ctx, "querier.Query",
		trace.WithAttributes(
			attribute.String("bucket", q.cfg.Bucket),
			attribute.Bool("forceRemote", o.forceRemote),
		),
	)
	defer span.End()

	source := q.choose(ctx, o.forceRemote)
	span.SetAttributes(attribute.String("source", string(source)))

	fileSet, ctxOpts, err := q.discover(ctx, source)
	if err != nil {
		return nil, err
	}

	execCtx, err := duckdbx.NewContext(ctx, ctxOpts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = execCtx.Close() }()

	if err := execCtx.RegisterFileSet(ctx, q.cfg.TableName, fileSet); err != nil {
		return nil, err
	}
	q.registerAuxiliaries(ctx, execCtx)

	return execCtx.Execute(ctx, sqlText)
}

// Schema reports the dataset's column names and declared types, derived
// from a zero-row probe of the primary table.
func (q *Querier) Schema(ctx context.Context) (map[string]string, error) {
	result, err := q.Query(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT 0`, q.cfg.TableName))
	if err != nil {
		return nil, err
	}
	schema := make(map[string]string, len(result.Columns))
	for _, col := range result.Columns {
		schema[col.Name] = col.Type
	}
	return schema, nil
}

// ListAvailablePartitions reports the ordered partition values actually
// present in remote storage, intersected with the configured date range.
func (q *Querier) ListAvailablePartitions(ctx context.Context) ([]string, error) {
	lister, err := q.objectLister(ctx)
	if err != nil {
		return nil, err
	}
	return discovery.NewRemote(lister).ListPartitions(ctx, q.cfg)
}

// DownloadLocally mirrors the remote dataset into the configured local root.
// Each file succeeds or fails independently; the summary reports partial
// success.
func (q *Querier) DownloadLocally(ctx context.Context, overwrite bool) (*mirror.DownloadSummary, error) {
	if q.cfg.LocalRoot == "" {
		return nil, fmt.Errorf("no local mirror root configured")
	}

	lister, err := q.objectLister(ctx)
	if err != nil {
		return nil, err
	}
	fileSet, err := discovery.NewRemote(lister).Discover(ctx, q.cfg)
	if err != nil {
		return nil, err
	}

	s3client, err := q.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	return q.mirror.Download(ctx, s3client, q.cfg, fileSet, overwrite, q.downloadConcurrency)
}

// LocalCacheStatus reports presence, size, and freshness of the mirror.
func (q *Querier) LocalCacheStatus(_ context.Context) (*mirror.Status, error) {
	return q.mirror.Status(q.cfg)
}

// ClearLocalCache deletes the dataset's mirror subtree. Requires the
// explicit confirmation flag.
func (q *Querier) ClearLocalCache(ctx context.Context, confirmed bool) error {
	return q.mirror.Clear(ctx, q.cfg, confirmed)
}

func (q *Querier) discover(ctx context.Context, source Source) (*discovery.FileSet, []duckdbx.ContextOption, error) {
	if source == SourceLocal {
		fs, err := q.mirror.Discover(ctx, q.cfg)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	}

	lister, err := q.objectLister(ctx)
	if err != nil {
		return nil, nil, err
	}
	fs, err := discovery.NewRemote(lister).Discover(ctx, q.cfg)
	if err != nil {
		return nil, nil, err
	}

	creds, err := q.aws.Resolve(ctx, q.cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []duckdbx.ContextOption{
		duckdbx.WithRemoteAccess(duckdbx.RemoteAccess{
			Bucket:      q.cfg.Bucket,
			Region:      q.cfg.Region,
			Endpoint:    q.cfg.Endpoint,
			Credentials: creds,
		}),
	}
	return fs, opts, nil
}

// registerAuxiliaries exposes reference tables in the execution context.
// Failures are logged and the table is simply absent from the session; the
// primary dataset stays queryable through reference-data outages.
func (q *Querier) registerAuxiliaries(ctx context.Context, execCtx *duckdbx.Context) {
	logger := logctx.FromContext(ctx)
	for _, src := range q.auxSources {
		path, err := q.auxMat.Materialize(ctx, src)
		if err != nil {
			logger.Warn("auxiliary table unavailable, skipping",
				"table", src.Name(), "error", err)
			continue
		}
		if err := execCtx.RegisterParquet(ctx, src.Name(), path); err != nil {
			logger.Warn("auxiliary table registration failed, skipping",
				"table", src.Name(), "error", err)
		}
	}
}

func (q *Querier) objectLister(ctx context.Context) (discovery.ObjectLister, error) {
	if q.lister != nil {
		return q.lister, nil
	}
	s3client, err := q.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	return discovery.NewS3Lister(s3client), nil
}

func (q *Querier) s3Client(ctx context.Context) (*awsclient.S3Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.s3 != nil {
		return q.s3, nil
	}
	s3client, err := q.aws.GetS3(ctx, q.cfg)
	if err != nil {
		return nil, err
	}
	q.s3 = s3client
	return s3client, nil
}
