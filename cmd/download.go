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
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	var overwrite bool

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Mirror the matching remote files into the local cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}
			summary, err := q.DownloadLocally(cmd.Context(), overwrite)
			if err != nil {
				return err
			}
			fmt.Printf("downloaded %d, skipped %d, failed %d (%d bytes)\n",
				summary.Succeeded, summary.Skipped, summary.Failed, summary.TotalBytes)
			if summary.Errors != nil {
				return summary.Errors
			}
			return nil
		},
	}
	downloadCmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-download files that already exist locally")
	rootCmd.AddCommand(downloadCmd)
}
