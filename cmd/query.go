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
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/billinglake/querier"
)

func init() {
	var (
		sqlText     string
		forceRemote bool
	)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a SQL statement against the dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}

			var opts []querier.QueryOption
			if forceRemote {
				opts = append(opts, querier.ForceRemote())
			}
			result, err := q.Query(cmd.Context(), sqlText, opts...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for i, col := range result.Columns {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				fmt.Fprint(w, col.Name)
			}
			fmt.Fprintln(w)
			for _, row := range result.Rows {
				for i, v := range row {
					if i > 0 {
						fmt.Fprint(w, "\t")
					}
					if v == nil {
						fmt.Fprint(w, "NULL")
					} else {
						fmt.Fprintf(w, "%v", v)
					}
				}
				fmt.Fprintln(w)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("(%d rows)\n", result.RowCount())
			return nil
		},
	}
	queryCmd.Flags().StringVarP(&sqlText, "sql", "s", "", "SQL statement to execute")
	queryCmd.Flags().BoolVar(&forceRemote, "force-remote", false, "bypass the local mirror for this query")
	_ = queryCmd.MarkFlagRequired("sql")
	rootCmd.AddCommand(queryCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the dataset's column names and types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := newQuerier()
			if err != nil {
				return err
			}
			cols, err := q.Schema(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cols))
			for name := range cols {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, cols[name])
			}
			return w.Flush()
		},
	}
	rootCmd.AddCommand(schemaCmd)
}
