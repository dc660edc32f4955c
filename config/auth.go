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

import "time"

// AuthSpec is one of four mutually exclusive credential strategies, chosen
// once at config construction rather than probed field-by-field at call
// time: ExplicitAuth, ProfileAuth, AssumedRoleAuth, or DefaultChainAuth.
type AuthSpec interface {
	authSpec()
}

// ExplicitAuth carries a static key pair, optionally temporary (session
// token plus expiry).
type ExplicitAuth struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
}

// ProfileAuth resolves credentials from a named shared-config profile.
type ProfileAuth struct {
	Name string
}

// AssumedRoleAuth assumes a cross-account role via STS.
type AssumedRoleAuth struct {
	RoleARN    string
	ExternalID string
}

// DefaultChainAuth uses the SDK's default credential chain.
type DefaultChainAuth struct{}

func (ExplicitAuth) authSpec()     {}
func (ProfileAuth) authSpec()      {}
func (AssumedRoleAuth) authSpec()  {}
func (DefaultChainAuth) authSpec() {}

func validateAuth(a AuthSpec) error {
	switch auth := a.(type) {
	case ExplicitAuth:
		if auth.AccessKeyID == "" || auth.SecretAccessKey == "" {
			return &InvalidConfigError{Reason: "explicit auth requires both access key id and secret access key"}
		}
	case ProfileAuth:
		if auth.Name == "" {
			return &InvalidConfigError{Reason: "profile auth requires a profile name"}
		}
	case AssumedRoleAuth:
		if auth.RoleARN == "" {
			return &InvalidConfigError{Reason: "assumed role auth requires a role ARN"}
		}
	case DefaultChainAuth:
	case nil:
		return &InvalidConfigError{Reason: "auth spec must not be nil"}
	}
	return nil
}
