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
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/awsclient"
	"github.com/cardinalhq/billinglake/internal/logctx"
	"github.com/cardinalhq/billinglake/internal/partition"
)

// ObjectInfo is one listed storage object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectLister is the storage surface discovery needs: flat listing under a
// prefix and delimiter listing of the immediate sub-prefixes. Satisfied by
// S3Lister; tests supply fakes.
type ObjectLister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	ListCommonPrefixes(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Lister implements ObjectLister over a real S3 client.
type S3Lister struct {
	client *awsclient.S3Client
}

func NewS3Lister(client *awsclient.S3Client) *S3Lister {
	return &S3Lister{client: client}
}

func (l *S3Lister) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	ctx, span := l.client.Tracer.Start(ctx, "discovery.ListObjects",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(l.client.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

func (l *S3Lister) ListCommonPrefixes(ctx context.Context, bucket, prefix string) ([]string, error) {
	ctx, span := l.client.Tracer.Start(ctx, "discovery.ListCommonPrefixes",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(l.client.Client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list prefixes s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return prefixes, nil
}

// Remote discovers export files in the object store.
type Remote struct {
	lister ObjectLister
}

func NewRemote(lister ObjectLister) *Remote {
	return &Remote{lister: lister}
}

// Discover resolves the config's partitions to concrete s3:// URIs. With a
// date range it lists each expected partition prefix; partial presence
// within the range is fine, but zero files across the whole range raises
// PartitionsNotFoundError enumerating every expected location. With no range
// it first delimiter-lists partition directories and then lists each one,
// raising NoDataFoundError when the root holds nothing readable.
func (r *Remote) Discover(ctx context.Context, cfg *config.ExportConfig) (*FileSet, error) {
	parts, err := cfg.Partitions()
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	if parts != nil {
		if err := r.discoverRanged(ctx, cfg, parts, b); err != nil {
			return nil, err
		}
	} else {
		if err := r.discoverAll(ctx, cfg, b); err != nil {
			return nil, err
		}
	}

	if b.skipped > 0 {
		logctx.FromContext(ctx).Warn("skipped objects with unrecognized extensions during discovery",
			"count", b.skipped, "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	}
	return b.build(), nil
}

func (r *Remote) discoverRanged(ctx context.Context, cfg *config.ExportConfig, parts []partition.Descriptor, b *builder) error {
	expected := make([]string, 0, len(parts))
	for _, part := range parts {
		expected = append(expected, fmt.Sprintf("s3://%s/%s", cfg.Bucket, part.Prefix))
		objects, err := r.lister.ListObjects(ctx, cfg.Bucket, part.Prefix)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			if err := b.add(fmt.Sprintf("s3://%s/%s", cfg.Bucket, obj.Key)); err != nil {
				return err
			}
		}
	}
	if len(b.files) == 0 {
		return &PartitionsNotFoundError{Prefixes: expected}
	}
	return nil
}

func (r *Remote) discoverAll(ctx context.Context, cfg *config.ExportConfig, b *builder) error {
	root := cfg.Prefix
	if root != "" {
		root += "/"
	}

	dirs, err := r.lister.ListCommonPrefixes(ctx, cfg.Bucket, root)
	if err != nil {
		return err
	}

	marker := cfg.Schema.Key() + "="
	for _, dir := range dirs {
		if !strings.HasPrefix(lastComponent(dir), marker) {
			continue
		}
		objects, err := r.lister.ListObjects(ctx, cfg.Bucket, dir)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			if err := b.add(fmt.Sprintf("s3://%s/%s", cfg.Bucket, obj.Key)); err != nil {
				return err
			}
		}
	}

	if len(b.files) == 0 {
		return &NoDataFoundError{Root: fmt.Sprintf("s3://%s/%s", cfg.Bucket, root)}
	}
	return nil
}

// ListPartitions reports the ordered partition values actually present in
// storage, intersected with the configured date range when one is set.
func (r *Remote) ListPartitions(ctx context.Context, cfg *config.ExportConfig) ([]string, error) {
	root := cfg.Prefix
	if root != "" {
		root += "/"
	}

	dirs, err := r.lister.ListCommonPrefixes(ctx, cfg.Bucket, root)
	if err != nil {
		return nil, err
	}

	values := []string{}
	for _, dir := range dirs {
		v := partition.ValueFromPath(cfg.Schema, dir)
		if v == "" {
			continue
		}
		if cfg.HasDateRange() && !partition.InRange(cfg.Schema, v, cfg.DateStart, cfg.DateEnd) {
			continue
		}
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

func lastComponent(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
