// Package recipient reads the recipient rows a job walks through and writes
// back their delivery status.
package recipient

import (
	"context"
	"fmt"
	"strings"
)

// SentStatus is written to a row once its batch went out. Reads match "sent"
// in any letter case.
const SentStatus = "Sent"

// Row is one line of the recipient sheet. Index 0 is the header row.
type Row struct {
	Index   int
	ID      int64
	Address string
	Status  string
}

func (r Row) IsSent() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), "sent")
}

func (r Row) HasAddress() bool {
	return strings.TrimSpace(r.Address) != ""
}

func (r Row) IsPending() bool {
	return r.HasAddress() && !r.IsSent()
}

type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	MarkSent(ctx context.Context, rows []Row) error
}

// ColumnIndex converts a spreadsheet column letter ("A", "B", "AA") into a
// zero based index.
func ColumnIndex(letter string) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return 0, fmt.Errorf("empty column letter")
	}

	index := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		index = index*26 + int(r-'A'+1)
	}
	return index - 1, nil
}
