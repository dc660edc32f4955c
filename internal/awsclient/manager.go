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

// Package awsclient resolves storage credentials and builds S3 clients for
// export configs. Each of the four auth strategies maps to exactly one
// resolution path; providers are cached per strategy key.
package awsclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/logctx"
)

// Temporary credentials expiring within this window trigger a warning.
const expiryWarningWindow = 15 * time.Minute

// CredentialError indicates that no strategy produced usable credentials.
type CredentialError struct {
	Strategy string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential resolution failed (%s): %v", e.Strategy, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

type providerKey struct {
	strategy string
	detail   string
	region   string
}

type Manager struct {
	sessionName string
	tracer      trace.Tracer

	sync.RWMutex
	providers map[providerKey]aws.CredentialsProvider
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

func WithAssumeRoleSessionName(name string) ManagerOption {
	return func(mgr *Manager) {
		mgr.sessionName = name
	}
}

// NewManager builds a credential manager. No AWS calls are made until a
// config is resolved.
func NewManager(opts ...ManagerOption) *Manager {
	mgr := &Manager{
		sessionName: "billinglake-query",
		providers:   make(map[providerKey]aws.CredentialsProvider),
		tracer:      otel.Tracer("github.com/cardinalhq/billinglake/internal/awsclient"),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// ProviderFor resolves the config's auth strategy to a credentials provider,
// building and caching it on first use.
func (m *Manager) ProviderFor(ctx context.Context, cfg *config.ExportConfig) (aws.CredentialsProvider, error) {
	key := keyFor(cfg)

	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if ok {
		return provider, nil
	}

	m.Lock()
	defer m.Unlock()
	if provider, ok = m.providers[key]; ok {
		return provider, nil
	}

	provider, err := m.buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.providers[key] = provider
	return provider, nil
}

// Resolve retrieves live credentials for the config and warns when temporary
// credentials are close to expiry.
func (m *Manager) Resolve(ctx context.Context, cfg *config.ExportConfig) (aws.Credentials, error) {
	provider, err := m.ProviderFor(ctx, cfg)
	if err != nil {
		return aws.Credentials{}, err
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, &CredentialError{Strategy: strategyName(cfg.Auth), Err: err}
	}

	if creds.CanExpire {
		remaining := time.Until(creds.Expires)
		if remaining <= 0 {
			return aws.Credentials{}, &CredentialError{
				Strategy: strategyName(cfg.Auth),
				Err:      fmt.Errorf("temporary credentials expired at %s", creds.Expires.Format(time.RFC3339)),
			}
		}
		if remaining < expiryWarningWindow {
			logctx.FromContext(ctx).Warn("temporary credentials expire soon",
				"expiresAt", creds.Expires.Format(time.RFC3339),
				"remaining", remaining.String())
		}
	}

	return creds, nil
}

func (m *Manager) buildProvider(ctx context.Context, cfg *config.ExportConfig) (aws.CredentialsProvider, error) {
	switch auth := cfg.Auth.(type) {
	case config.ExplicitAuth:
		static := credentials.NewStaticCredentialsProvider(
			auth.AccessKeyID, auth.SecretAccessKey, auth.SessionToken)
		if auth.Expiry.IsZero() {
			return static, nil
		}
		return expiringProvider{inner: static, expiry: auth.Expiry}, nil

	case config.ProfileAuth:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithSharedConfigProfile(auth.Name),
			regionOpt(cfg.Region))
		if err != nil {
			return nil, &CredentialError{Strategy: "profile", Err: err}
		}
		return awsCfg.Credentials, nil

	case config.AssumedRoleAuth:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, regionOpt(cfg.Region))
		if err != nil {
			return nil, &CredentialError{Strategy: "assumed_role", Err: err}
		}
		stsClient := sts.NewFromConfig(awsCfg)
		p := stscreds.NewAssumeRoleProvider(stsClient, auth.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = m.sessionName
			if auth.ExternalID != "" {
				o.ExternalID = aws.String(auth.ExternalID)
			}
		})
		return aws.NewCredentialsCache(p), nil

	case config.DefaultChainAuth:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, regionOpt(cfg.Region))
		if err != nil {
			return nil, &CredentialError{Strategy: "default_chain", Err: err}
		}
		return awsCfg.Credentials, nil

	default:
		return nil, &CredentialError{
			Strategy: "unknown",
			Err:      fmt.Errorf("unsupported auth spec %T", cfg.Auth),
		}
	}
}

func regionOpt(region string) awsconfig.LoadOptionsFunc {
	return func(o *awsconfig.LoadOptions) error {
		if region != "" {
			o.Region = region
		}
		return nil
	}
}

func keyFor(cfg *config.ExportConfig) providerKey {
	k := providerKey{strategy: strategyName(cfg.Auth), region: cfg.Region}
	switch auth := cfg.Auth.(type) {
	case config.ExplicitAuth:
		k.detail = auth.AccessKeyID
	case config.ProfileAuth:
		k.detail = auth.Name
	case config.AssumedRoleAuth:
		k.detail = auth.RoleARN + "/" + auth.ExternalID
	}
	return k
}

func strategyName(a config.AuthSpec) string {
	switch a.(type) {
	case config.ExplicitAuth:
		return "explicit"
	case config.ProfileAuth:
		return "profile"
	case config.AssumedRoleAuth:
		return "assumed_role"
	case config.DefaultChainAuth:
		return "default_chain"
	default:
		return "unknown"
	}
}

// expiringProvider wraps a static provider with a known expiry so that
// Resolve can apply the near-expiry warning to explicit session credentials.
type expiringProvider struct {
	inner  aws.CredentialsProvider
	expiry time.Time
}

func (p expiringProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	creds, err := p.inner.Retrieve(ctx)
	if err != nil {
		return creds, err
	}
	creds.CanExpire = true
	creds.Expires = p.expiry
	return creds, nil
}
