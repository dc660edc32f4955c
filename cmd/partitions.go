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
	partitionsCmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the partition values present in the remote dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}
			values, err := q.ListAvailablePartitions(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Println(v)
			}
			return nil
		},
	}
	rootCmd.AddCommand(partitionsCmd)
}
