package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const previewRows = 5

var ErrNoHeader = errors.New("csv has no header row")

// Stats describes an uploaded table. Rows excludes the header.
type Stats struct {
	Rows    int
	Columns int
	Header  []string
	Preview [][]string
}

func Inspect(raw []byte) (*Stats, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header failed: %w", err)
	}

	stats := &Stats{Columns: len(header), Header: header}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d failed: %w", stats.Rows+1, err)
		}
		if len(stats.Preview) < previewRows {
			stats.Preview = append(stats.Preview, record)
		}
		stats.Rows++
	}
	return stats, nil
}

// Describe renders the stats as prompt context for a model that will see the table as df.
func (s *Stats) Describe() string {
	var b strings.Builder
	b.WriteString("## Dataframe Information\n")
	b.WriteString("You have access to a pandas DataFrame named `df`.\n")
	fmt.Fprintf(&b, "It has %d rows and %d columns: %s\n", s.Rows, s.Columns, strings.Join(s.Header, ", "))
	if len(s.Preview) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\nThe first %d rows are:\n\n", len(s.Preview))
	b.WriteString("| " + strings.Join(s.Header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(s.Header)) + "\n")
	for _, row := range s.Preview {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}
