package recorder

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

// CSVSink appends rows to one CSV file. The header is written only when the
// file does not exist yet, so a restart continues the same file without
// truncating or duplicating anything.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) EnsureHeader(columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return domain.SinkErr(err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.SinkErr(err)
	}
	return s.write(columns, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
}

func (s *CSVSink) AppendRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(row, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func (s *CSVSink) write(record []string, flags int) error {
	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return domain.SinkErr(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return domain.SinkErr(err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.SinkErr(err)
	}
	return nil
}
