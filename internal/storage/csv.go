package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang/snappy"

	"github.com/safefeat/safefeat/pkg/frame"
)

// ReadCSVFile reads a CSV file into a table. The first record is the
// header. Empty cells become nil; numeric cells become int64 or float64;
// everything else stays a string.
func ReadCSVFile(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return readCSV(f)
}

// ReadCSVSnappyFile reads a snappy-compressed CSV file into a table.
func ReadCSVSnappyFile(path string) (*frame.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return readCSV(snappy.NewReader(f))
}

func readCSV(r io.Reader) (*frame.Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	table := frame.New(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		row := make([]interface{}, len(record))
		for i, cell := range record {
			row[i] = inferCell(cell)
		}
		if err := table.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// inferCell converts a CSV cell to its natural Go type.
func inferCell(cell string) interface{} {
	if cell == "" {
		return nil
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

// WriteCSVFile writes a table to a CSV file. A .sz suffix on the path
// enables snappy compression.
func WriteCSVFile(path string, table *frame.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if DetectFormat(path) == FormatCSVSnappy {
		w := snappy.NewBufferedWriter(f)
		if err := writeCSV(w, table); err != nil {
			return err
		}
		return w.Close()
	}
	return writeCSV(f, table)
}

func writeCSV(w io.Writer, table *frame.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, cell := range row {
			if cell == nil {
				record[i] = ""
			} else {
				record[i] = frame.CanonicalString(cell)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
