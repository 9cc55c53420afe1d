package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cashbook/internal/sheets"

	"github.com/google/uuid"
)

var (
	_ sheets.SettlementWriter = (*Store)(nil)
	_ sheets.SettlementLister = (*Store)(nil)
)

// Store keeps exported rows in memory, in the layout the sheet would have.
type Store struct {
	mu       sync.Mutex
	rows     [][]any
	exported map[uuid.UUID]string
}

func New() *Store {
	return &Store{
		rows:     [][]any{sheets.Header},
		exported: make(map[uuid.UUID]string),
	}
}

// AppendSettlement stores the rows of e once and returns a synthetic range.
// A batch seen before returns its original range.
func (s *Store) AppendSettlement(_ context.Context, e sheets.SettlementExport) (string, error) {
	if e.SettlementID == uuid.Nil {
		return "", errors.New("settlement id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.exported[e.SettlementID]; ok {
		return ref, nil
	}
	rows := sheets.Rows(e)
	first := len(s.rows) + 1
	s.rows = append(s.rows, rows...)
	ref := fmt.Sprintf("mem:%d-%d", first, len(s.rows))
	s.exported[e.SettlementID] = ref
	return ref, nil
}

func (s *Store) ExportedSettlements(_ context.Context) (map[uuid.UUID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sheets.SettlementIDs(s.rows), nil
}

// Rows returns a copy of everything written so far, header included.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}
