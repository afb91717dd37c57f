package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

// SQLiteSink is an alternate durable sink: one table per venue, one TEXT
// column per CSV column. Kept behind the same contract so the recorder does
// not care which storage it writes to.
type SQLiteSink struct {
	db    *sql.DB
	table string

	mu     sync.Mutex
	insert string
}

func NewSQLiteSink(db *sql.DB, table string) *SQLiteSink {
	return &SQLiteSink{db: db, table: table}
}

func OpenSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

func (s *SQLiteSink) EnsureHeader(columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make([]string, len(columns))
	holders := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
		defs[i] = quoted[i] + " TEXT"
		holders[i] = "?"
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", s.table, strings.Join(defs, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return domain.SinkErr(err)
	}

	s.insert = fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		s.table, strings.Join(quoted, ", "), strings.Join(holders, ", "),
	)
	return nil
}

func (s *SQLiteSink) AppendRow(row []string) error {
	s.mu.Lock()
	insert := s.insert
	s.mu.Unlock()

	if insert == "" {
		return domain.SinkErr(fmt.Errorf("sqlite sink: header not ensured for table %s", s.table))
	}

	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	if _, err := s.db.Exec(insert, args...); err != nil {
		return domain.SinkErr(err)
	}
	return nil
}

// MultiSink fans every write out to all sinks; the first error is reported
// after all sinks were attempted, so one failing store does not starve the
// others.
type MultiSink []Sink

func (m MultiSink) EnsureHeader(columns []string) error {
	var firstErr error
	for _, s := range m {
		if err := s.EnsureHeader(columns); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) AppendRow(row []string) error {
	var firstErr error
	for _, s := range m {
		if err := s.AppendRow(row); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
