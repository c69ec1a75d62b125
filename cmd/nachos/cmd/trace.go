package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/datarecording"
	"github.com/sarchlab/nachosim/tracing"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Summarize a trace recorded with --trace.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := os.Stat(args[0])
		if err != nil {
			return err
		}

		r := datarecording.NewReader(args[0])
		defer r.Close()

		return summarizeTrace(cmd.Context(), r, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func summarizeTrace(
	ctx context.Context,
	r datarecording.DataReader,
	out io.Writer,
) error {
	r.MapTable(tracing.SettingTable, tracing.Setting{})

	rows, _, err := r.Query(ctx, tracing.SettingTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, row := range rows {
		s := row.(*tracing.Setting)
		fmt.Fprintf(out, "%-12s %s\n", s.Property, s.Value)
	}

	summary, err := tracing.Summarize(ctx, r)
	if err != nil {
		return err
	}

	tables := make([]string, 0, len(summary))
	for table := range summary {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	for _, table := range tables {
		fmt.Fprintf(out, "%s:\n", table)

		kinds := make([]string, 0, len(summary[table]))
		for kind := range summary[table] {
			kinds = append(kinds, kind)
		}

		sort.Strings(kinds)

		for _, kind := range kinds {
			fmt.Fprintf(out, "  %-16s %d\n", kind, summary[table][kind])
		}
	}

	return nil
}
