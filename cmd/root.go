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

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cardinalhq/billinglake/config"
	"github.com/cardinalhq/billinglake/internal/auxdata"
	"github.com/cardinalhq/billinglake/internal/partition"
	"github.com/cardinalhq/billinglake/querier"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "billinglake",
	Short: "Query partitioned billing exports with SQL",
	Long: `Run ad-hoc SQL over date-partitioned billing export datasets in S3,
optionally mirrored locally, joining pricing and savings-plan reference data.`,
}

func init() {
	viper.SetEnvPrefix("BILLINGLAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("bucket", "", "export bucket name")
	pf.String("prefix", "", "export key prefix inside the bucket")
	pf.String("export-schema", string(partition.SchemaCostUsageV2), "export schema (cost_usage_v2, focus_1_0, cost_optimization_hub, carbon_emission)")
	pf.String("table", "billing_data", "logical table name")
	pf.String("date-start", "", "inclusive range start (YYYY-MM or YYYY-MM-DD)")
	pf.String("date-end", "", "inclusive range end (YYYY-MM or YYYY-MM-DD)")
	pf.String("region", "", "AWS region")
	pf.String("endpoint", "", "custom S3 endpoint")
	pf.Bool("path-style", false, "use path-style S3 addressing")
	pf.String("mirror-root", "", "local mirror root directory")
	pf.Bool("prefer-local", false, "prefer the local mirror when populated")
	pf.String("profile", "", "shared-config profile to authenticate with")
	pf.String("role-arn", "", "IAM role to assume")
	pf.String("external-id", "", "external id for the assumed role")

	for _, key := range []string{
		"bucket", "prefix", "export-schema", "table", "date-start", "date-end",
		"region", "endpoint", "path-style", "mirror-root", "prefer-local",
		"profile", "role-arn", "external-id",
	} {
		_ = viper.BindPFlag(strings.ReplaceAll(key, "-", "."), pf.Lookup(key))
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// datasetConfig builds the validated export config from flags and
// BILLINGLAKE_* environment variables.
func datasetConfig() (*config.ExportConfig, error) {
	schema, err := partition.ParseSchema(viper.GetString("export.schema"))
	if err != nil {
		return nil, err
	}

	opts := []config.Option{
		config.WithTableName(viper.GetString("table")),
		config.WithAuth(authSpec()),
	}
	if start, end := viper.GetString("date.start"), viper.GetString("date.end"); start != "" || end != "" {
		opts = append(opts, config.WithDateRange(start, end))
	}
	if root := viper.GetString("mirror.root"); root != "" {
		opts = append(opts, config.WithLocalMirror(root, viper.GetBool("prefer.local")))
	}
	if region := viper.GetString("region"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		opts = append(opts, config.WithEndpoint(endpoint, viper.GetBool("path.style")))
	}

	return config.New(viper.GetString("bucket"), viper.GetString("prefix"), schema, opts...)
}

// authSpec picks the credential strategy: explicit keys beat a profile,
// a profile beats an assumed role, and the SDK default chain is the fallback.
func authSpec() config.AuthSpec {
	if key := os.Getenv("BILLINGLAKE_ACCESS_KEY_ID"); key != "" {
		return config.ExplicitAuth{
			AccessKeyID:     key,
			SecretAccessKey: os.Getenv("BILLINGLAKE_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("BILLINGLAKE_SESSION_TOKEN"),
		}
	}
	if profile := viper.GetString("profile"); profile != "" {
		return config.ProfileAuth{Name: profile}
	}
	if role := viper.GetString("role.arn"); role != "" {
		return config.AssumedRoleAuth{
			RoleARN:    role,
			ExternalID: viper.GetString("external.id"),
		}
	}
	return config.DefaultChainAuth{}
}

func newQuerier() (*querier.Querier, error) {
	cfg, err := datasetConfig()
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return querier.New(cfg,
		querier.WithAuxiliarySources(
			auxdata.NewPricingSource(region),
			auxdata.NewSavingsPlanSource(region),
		),
	), nil
}
