package recipient

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CSVSource reads the sheet from a CSV export whose first line is the header.
type CSVSource struct {
	mu            sync.Mutex
	path          string
	addressColumn int
	statusColumn  int
}

func NewCSVSource(path string, addressColumn string, statusColumn string) (*CSVSource, error) {
	addr, err := ColumnIndex(addressColumn)
	if err != nil {
		return nil, fmt.Errorf("address column: %w", err)
	}
	status, err := ColumnIndex(statusColumn)
	if err != nil {
		return nil, fmt.Errorf("status column: %w", err)
	}
	if addr == status {
		return nil, fmt.Errorf("address and status columns must differ")
	}

	return &CSVSource{path: path, addressColumn: addr, statusColumn: status}, nil
}

func (s *CSVSource) Rows(_ context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for i, record := range records {
		rows = append(rows, Row{
			Index:   i,
			Address: cell(record, s.addressColumn),
			Status:  cell(record, s.statusColumn),
		})
	}
	return rows, nil
}

func (s *CSVSource) MarkSent(_ context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.Index <= 0 || row.Index >= len(records) {
			return fmt.Errorf("row %d is out of range", row.Index)
		}
		record := records[row.Index]
		for len(record) <= s.statusColumn {
			record = append(record, "")
		}
		record[s.statusColumn] = SentStatus
		records[row.Index] = record
	}

	return s.write(records)
}

func (s *CSVSource) read() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipients file: %w", err)
	}
	return records, nil
}

// write replaces the file atomically through a sibling temp file.
func (s *CSVSource) write(records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	writer := csv.NewWriter(tmp)
	if err := writer.WriteAll(records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write recipients file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}

func cell(record []string, column int) string {
	if column < len(record) {
		return record[column]
	}
	return ""
}
