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
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local mirror",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report the local mirror contents for this dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}
			st, err := q.LocalCacheStatus(cmd.Context())
			if err != nil {
				return err
			}
			if !st.HasData {
				fmt.Println("cache is empty")
				return nil
			}
			fmt.Printf("%d files, %d bytes, last updated %s\n",
				st.FileCount, st.TotalBytes, st.LastUpdated.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cacheCmd.AddCommand(statusCmd)

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete this dataset's local mirror",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}
			return q.ClearLocalCache(cmd.Context(), yes)
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	cacheCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(cacheCmd)
}
