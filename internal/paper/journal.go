package paper

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// TradeJournal mirrors the trade log to durable storage as it grows. The
// broker appends one entry per fill, deltas included, so the on-disk audit
// trail carries the same information as PnL().
type TradeJournal interface {
	Append(Trade) error
}

// FileJournal writes trade-log rows as JSON lines. Each Append flushes, so
// the file is complete up to the last fill even if the process dies.
type FileJournal struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// OpenJournal creates or opens the journal file for appending.
func OpenJournal(path string) (*FileJournal, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{file: file, buf: bufio.NewWriter(file)}, nil
}

// Append writes one trade as a JSON line and flushes it to disk.
func (j *FileJournal) Append(trade Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return os.ErrClosed
	}
	line, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	if _, err := j.buf.Write(append(line, '\n')); err != nil {
		return err
	}
	return j.buf.Flush()
}

// Close flushes any buffered rows and releases the file handle.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	flushErr := j.buf.Flush()
	closeErr := j.file.Close()
	j.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadJournal loads every trade row from a journal file, oldest first.
func ReadJournal(path string) ([]Trade, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var trades []Trade
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var trade Trade
		if err := json.Unmarshal(scanner.Bytes(), &trade); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, scanner.Err()
}
