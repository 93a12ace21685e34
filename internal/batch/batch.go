// Package batch selects the next group of pending recipients from a cursor.
package batch

import "mailbatch/internal/recipient"

type Batch struct {
	Rows []recipient.Row
	// Next is the index right after the last scanned row.
	Next int
}

func (b Batch) Empty() bool {
	return len(b.Rows) == 0
}

func (b Batch) Addresses() []string {
	out := make([]string, 0, len(b.Rows))
	for _, row := range b.Rows {
		out = append(out, row.Address)
	}
	return out
}

// Select scans rows forward from start and keeps up to max pending rows.
// Rows already marked sent are skipped without counting toward max.
func Select(rows []recipient.Row, start int, max int) Batch {
	if start < 1 {
		start = 1
	}

	b := Batch{Next: start}
	if max <= 0 || start >= len(rows) {
		return b
	}

	for i := start; i < len(rows); i++ {
		b.Next = i + 1
		if !rows[i].IsPending() {
			continue
		}
		b.Rows = append(b.Rows, rows[i])
		if len(b.Rows) == max {
			break
		}
	}
	return b
}

// TotalEligible counts the rows with an address, header excluded.
func TotalEligible(rows []recipient.Row) int {
	total := 0
	for _, row := range rows {
		if row.HasAddress() {
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return total - 1
}

// Stats summarizes a recipient list for status reporting.
type Stats struct {
	Rows     int
	Eligible int
	Sent     int
	Pending  int
}

func Summarize(rows []recipient.Row) Stats {
	stats := Stats{Eligible: TotalEligible(rows)}
	if len(rows) > 0 {
		stats.Rows = len(rows) - 1
	}
	for i := 1; i < len(rows); i++ {
		switch {
		case !rows[i].HasAddress():
		case rows[i].IsSent():
			stats.Sent++
		default:
			stats.Pending++
		}
	}
	return stats
}
