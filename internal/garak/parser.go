package garak

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ParseReport reduces a newline-delimited JSON transcript into per-probe
// tallies. Malformed lines are skipped and counted, never fatal: a partially
// corrupt transcript still yields a usable report.
func ParseReport(r io.Reader) (*Report, error) {
	report := NewReport()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			report.MalformedLines++
			continue
		}
		if strings.TrimSpace(record.EntryType) == "" {
			report.MalformedLines++
			continue
		}
		report.Tally(record)
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read transcript: %w", err)
	}
	return report, nil
}

func ParseReportFile(path string) (*Report, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()
	return ParseReport(file)
}
