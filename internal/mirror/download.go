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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/awsclient"
	"github.com/cardinalhq/billinglake/internal/discovery"
	"github.com/cardinalhq/billinglake/internal/logctx"
)

// DefaultDownloadConcurrency bounds the mirror download worker pool.
const DefaultDownloadConcurrency = 5

var (
	downloadCount metric.Int64Counter
	downloadBytes metric.Int64Counter
	downloadFails metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/billinglake/internal/mirror")

	var err error
	downloadCount, err = meter.Int64Counter(
		"billinglake.mirror.download.count",
		metric.WithDescription("Number of export files downloaded to the local mirror"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.count counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"billinglake.mirror.download.bytes",
		metric.WithDescription("Bytes downloaded to the local mirror"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.bytes counter: %w", err))
	}

	downloadFails, err = meter.Int64Counter(
		"billinglake.mirror.download.errors",
		metric.WithDescription("Number of failed mirror downloads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.errors counter: %w", err))
	}
}

// DownloadSummary reports the outcome of one bulk mirror download. Each file
// succeeds or fails independently; failures never abort the rest of the
// batch.
type DownloadSummary struct {
	Succeeded  int
	Skipped    int
	Failed     int
	TotalBytes int64

	// Errors aggregates the individual failures for operator diagnosis.
	Errors error
}

// Download mirrors the remote file set locally using a bounded worker pool.
// Files already present are skipped unless overwrite is set. The summary
// reports partial success rather than failing on the first error.
func (m *Mirror) Download(
	ctx context.Context,
	s3client *awsclient.S3Client,
	cfg *config.ExportConfig,
	fileSet *discovery.FileSet,
	overwrite bool,
	concurrency int,
) (*DownloadSummary, error) {
	if cfg.LocalRoot == "" {
		return nil, fmt.Errorf("no local mirror root configured")
	}
	if concurrency <= 0 {
		concurrency = DefaultDownloadConcurrency
	}

	ctx, span := s3client.Tracer.Start(ctx, "mirror.Download",
		trace.WithAttributes(
			attribute.String("bucket", cfg.Bucket),
			attribute.Int("files", len(fileSet.Files)),
		),
	)
	defer span.End()

	logger := logctx.FromContext(ctx)
	summary := &DownloadSummary{}
	var mu sync.Mutex
	var errs *multierror.Error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, uri := range fileSet.Files {
		g.Go(func() error {
			key, err := keyFromURI(cfg.Bucket, uri)
			if err != nil {
				mu.Lock()
				summary.Failed++
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}

			local := LocalPathFor(cfg, key)
			if !overwrite {
				if _, err := os.Stat(local); err == nil {
					mu.Lock()
					summary.Skipped++
					mu.Unlock()
					return nil
				}
			}

			size, err := downloadOne(gctx, s3client, cfg.Bucket, key, local)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
				downloadFails.Add(gctx, 1, metric.WithAttributes(attribute.String("bucket", cfg.Bucket)))
				logger.Warn("mirror download failed", "key", key, "error", err)
				return nil
			}
			summary.Succeeded++
			summary.TotalBytes += size
			downloadCount.Add(gctx, 1, metric.WithAttributes(attribute.String("bucket", cfg.Bucket)))
			downloadBytes.Add(gctx, size, metric.WithAttributes(attribute.String("bucket", cfg.Bucket)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Errors = errs.ErrorOrNil()
	logger.Info("mirror download finished",
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"bytes", summary.TotalBytes)
	return summary, nil
}

// downloadOne fetches a single object to its mirrored path, writing to a
// temp file first so a partial download never looks like a cached file.
func downloadOne(ctx context.Context, s3client *awsclient.S3Client, bucket, key, local string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, fmt.Errorf("create mirror dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	downloader := manager.NewDownloader(s3client.Client)
	size, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return 0, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	_ = f.Close()

	if err := os.Rename(f.Name(), local); err != nil {
		_ = os.Remove(f.Name())
		return 0, fmt.Errorf("finalize %s: %w", local, err)
	}
	return size, nil
}

func keyFromURI(bucket, uri string) (string, error) {
	want := "s3://" + bucket + "/"
	if !strings.HasPrefix(uri, want) {
		return "", fmt.Errorf("unexpected file location %q (want bucket %s)", uri, bucket)
	}
	return strings.TrimPrefix(uri, want), nil
}
