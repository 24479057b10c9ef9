package audit

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/secretkeep/secretkeep/pkg/crypto"
)

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the integrity of the whole chain: sequence numbers, links
// and per-record HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, RecordsTotal: len(events)}
	expectedPrev := genesis
	var expectedSeq int64 = 1

	for _, event := range events {
		ok := true
		if event.Chain.Sequence != expectedSeq {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d", event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		mac, err := hex.DecodeString(event.Chain.HMAC)
		if err != nil || !crypto.VerifyHMAC(l.hmacKey, buildRecordData(&event), mac) {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		if ok {
			result.RecordsVerified++
		} else {
			result.Valid = false
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

// ListEvents returns the most recent events, oldest first.
// limit: maximum number of events to return (0 = all)
// since: only return events after this time (zero = no filter)
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	events = filterTime(events, since, time.Time{})
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Export renders events between since and until as "json" or "csv".
func (l *Logger) Export(format string, since, until time.Time) ([]byte, error) {
	l.mu.Lock()
	events, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	events = filterTime(events, since, until)

	switch format {
	case "json":
		if events == nil {
			events = []Event{}
		}
		return json.MarshalIndent(events, "", "  ")
	case "csv":
		return formatCSV(events)
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

// Raw returns the concatenated log files, for inclusion in backups.
func (l *Logger) Raw() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", f, err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func filterTime(events []Event, since, until time.Time) []Event {
	if since.IsZero() && until.IsZero() {
		return events
	}
	var filtered []Event
	for _, event := range events {
		t, err := time.Parse(time.RFC3339Nano, event.Timestamp)
		if err != nil {
			continue
		}
		if !since.IsZero() && !t.After(since) {
			continue
		}
		if !until.IsZero() && t.After(until) {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

// formatCSV writes one row per event. Cells that a spreadsheet would
// evaluate as a formula are prefixed with a quote.
func formatCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "operation", "source", "result", "secret_hash"}); err != nil {
		return nil, err
	}
	for _, event := range events {
		secretHash := event.Secret
		if len(secretHash) > 16 {
			secretHash = secretHash[:16] + "..."
		}
		row := []string{event.Timestamp, event.Operation, event.Actor.Source, event.Result, secretHash}
		for i, cell := range row {
			row[i] = neutralizeFormula(cell)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func neutralizeFormula(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@':
		return "'" + cell
	}
	return cell
}

// readAll reads every event in chronological order. Callers hold l.mu.
func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, f := range files {
		events, err := readLogFile(f)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", f, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	return events, sc.Err()
}
