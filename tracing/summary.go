package tracing

import (
	"context"

	"github.com/sarchlab/nachosim/datarecording"
)

// Summary holds the number of events of each kind, per table.
type Summary map[string]map[string]int

// Summarize reads back a trace and counts its events.
func Summarize(ctx context.Context, r datarecording.DataReader) (Summary, error) {
	r.MapTable(VMTable, VMEvent{})
	r.MapTable(ThreadTable, ThreadEvent{})
	r.MapTable(ProcessTable, ProcessEvent{})

	s := make(Summary)

	for _, table := range []string{VMTable, ThreadTable, ProcessTable} {
		rows, _, err := r.Query(ctx, table, datarecording.QueryParams{})
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int)
		for _, row := range rows {
			counts[kindOf(row)]++
		}

		s[table] = counts
	}

	return s, nil
}

func kindOf(row any) string {
	switch e := row.(type) {
	case *VMEvent:
		return e.Kind
	case *ThreadEvent:
		return e.Kind
	case *ProcessEvent:
		return e.Kind
	default:
		return ""
	}
}
