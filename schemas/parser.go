package schemas

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxRecordSize bounds one line of a recorded events file.
const maxRecordSize = 1 << 20

// ParseEventRecord validates data against the record schema and decodes it.
// Numeric arguments are kept as json.Number so large amounts stay exact.
func ParseEventRecord(data []byte) (*EventRecord, error) {
	if err := ValidateEventRecord(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record EventRecord
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &record, nil
}

// ParseEventRecords reads JSON lines, one record per line. Blank lines are
// skipped; errors carry the line number.
func ParseEventRecords(r io.Reader) ([]EventRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var records []EventRecord
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		record, err := ParseEventRecord(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, *record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

// ParseEventRecordFile reads a recorded events file.
func ParseEventRecordFile(path string) ([]EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseEventRecords(f)
}

// WriteEventRecords writes records as JSON lines.
func WriteEventRecords(w io.Writer, records []EventRecord) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}
