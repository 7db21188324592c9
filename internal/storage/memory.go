package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/positionbook/internal/models"
)

// bookData is the full persisted state of a MemoryStorage.
type bookData struct {
	Positions   map[string][]models.Position             `json:"positions"`
	Accounts    map[string]models.Account                `json:"accounts"`
	Snapshots   map[string]map[string]models.NavSnapshot `json:"snapshots"`
	Benchmarks  map[string]map[string]float64            `json:"benchmarks"`
	LastUpdated time.Time                                `json:"last_updated"`
}

func newBookData() *bookData {
	return &bookData{
		Positions:  make(map[string][]models.Position),
		Accounts:   make(map[string]models.Account),
		Snapshots:  make(map[string]map[string]models.NavSnapshot),
		Benchmarks: make(map[string]map[string]float64),
	}
}

// MemoryStorage keeps everything in maps guarded by a RWMutex. With a file
// path it also persists to JSON after every write (NewJSONStorage).
type MemoryStorage struct {
	writeError     error
	data           *bookData
	filepath       string
	committed      []byte // last state written to filepath
	writeCallCount int
	mu             sync.RWMutex
}

// NewMemoryStorage creates a non-persistent store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: newBookData()}
}

// NewJSONStorage creates a store persisted to filepath, loading it if present.
func NewJSONStorage(filepath string) (*MemoryStorage, error) {
	if filepath == "" {
		return nil, fmt.Errorf("json storage requires a file path")
	}
	s := &MemoryStorage{filepath: filepath, data: newBookData()}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

func (s *MemoryStorage) load() error {
	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	data := newBookData()
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	s.data = data
	s.committed = raw
	return nil
}

// commit runs after every successful mutation; callers hold the write lock.
// When the file cannot be written the in-memory state is rolled back to the
// last committed one, so memory never runs ahead of disk.
func (s *MemoryStorage) commit() error {
	if s.filepath == "" {
		return nil
	}
	s.data.LastUpdated = time.Now()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err == nil {
		err = s.writeFile(raw)
	}
	if err != nil {
		err = fmt.Errorf("persisting %s: %w", s.filepath, err)
		if rbErr := s.rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	s.committed = raw
	return nil
}

func (s *MemoryStorage) writeFile(raw []byte) error {
	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

func (s *MemoryStorage) rollback() error {
	data := newBookData()
	if len(s.committed) > 0 {
		if err := json.Unmarshal(s.committed, data); err != nil {
			return fmt.Errorf("restoring committed state: %w", err)
		}
	}
	s.data = data
	return nil
}

// beginWrite applies injected failures; callers hold the write lock.
func (s *MemoryStorage) beginWrite() error {
	s.writeCallCount++
	return s.writeError
}

// SetWriteError makes every subsequent write fail with err (nil clears it).
func (s *MemoryStorage) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeError = err
}

// WriteCallCount returns the number of write calls seen, failed ones included.
func (s *MemoryStorage) WriteCallCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeCallCount
}

// Positions returns positions for account, or every account in name order.
func (s *MemoryStorage) Positions(_ context.Context, account string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !models.IsAggregateScope(account) {
		return append([]models.Position(nil), s.data.Positions[account]...), nil
	}

	names := make([]string, 0, len(s.data.Positions))
	for name := range s.data.Positions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []models.Position
	for _, name := range names {
		out = append(out, s.data.Positions[name]...)
	}
	return out, nil
}

// ReplacePositions swaps in the complete position set for account.
func (s *MemoryStorage) ReplacePositions(_ context.Context, account string, positions []models.Position) (bool, error) {
	if err := checkWritable(account); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return false, err
	}

	replaced := len(s.data.Positions[account]) > 0
	next := make([]models.Position, len(positions))
	for i, p := range positions {
		p.Account = account
		next[i] = p
	}
	if len(next) == 0 {
		delete(s.data.Positions, account)
	} else {
		s.data.Positions[account] = next
	}
	return replaced, s.commit()
}

// UpsertPosition inserts pos or replaces the row with the same instrument id.
func (s *MemoryStorage) UpsertPosition(_ context.Context, pos models.Position) error {
	if err := checkWritable(pos.Account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}

	list := s.data.Positions[pos.Account]
	for i := range list {
		if list[i].InstrumentID == pos.InstrumentID {
			list[i] = pos
			return s.commit()
		}
	}
	s.data.Positions[pos.Account] = append(list, pos)
	return s.commit()
}

// DeletePosition removes one instrument from account.
func (s *MemoryStorage) DeletePosition(_ context.Context, account, instrumentID string) error {
	if err := checkWritable(account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}

	list := s.data.Positions[account]
	for i := range list {
		if list[i].InstrumentID == instrumentID {
			s.data.Positions[account] = append(list[:i:i], list[i+1:]...)
			return s.commit()
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrPositionNotFound, account, instrumentID)
}

// Account returns one account.
func (s *MemoryStorage) Account(_ context.Context, name string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.data.Accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return &acct, nil
}

// Accounts returns every account ordered by name.
func (s *MemoryStorage) Accounts(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Account, 0, len(s.data.Accounts))
	for _, a := range s.data.Accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveAccount inserts or replaces an account.
func (s *MemoryStorage) SaveAccount(_ context.Context, acct models.Account) error {
	if err := checkWritable(acct.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}
	s.data.Accounts[acct.Name] = acct
	return s.commit()
}

// UpsertSnapshot writes one snapshot, replacing any row for the same (account, date).
func (s *MemoryStorage) UpsertSnapshot(_ context.Context, snap models.NavSnapshot) error {
	if err := checkWritable(snap.Account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}

	byDate, ok := s.data.Snapshots[snap.Account]
	if !ok {
		byDate = make(map[string]models.NavSnapshot)
		s.data.Snapshots[snap.Account] = byDate
	}
	snap.Date = models.Day(snap.Date)
	byDate[snap.Date.Format(models.DateLayout)] = snap
	return s.commit()
}

// Snapshots returns snapshots in the closed date range, ascending by date then account.
func (s *MemoryStorage) Snapshots(_ context.Context, account string, from, to time.Time) ([]models.NavSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NavSnapshot
	for name, byDate := range s.data.Snapshots {
		if !models.IsAggregateScope(account) && name != account {
			continue
		}
		for _, snap := range byDate {
			if inRange(snap.Date, from, to) {
				out = append(out, snap)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Account < out[j].Account
	})
	return out, nil
}

// DeleteSnapshots clears the NAV history of account.
func (s *MemoryStorage) DeleteSnapshots(_ context.Context, account string) error {
	if err := checkWritable(account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}
	delete(s.data.Snapshots, account)
	return s.commit()
}

// UpsertBenchmarkPrices writes cache rows, replacing existing (symbol, date) rows.
func (s *MemoryStorage) UpsertBenchmarkPrices(_ context.Context, prices []models.BenchmarkPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}
	for _, p := range prices {
		byDate, ok := s.data.Benchmarks[p.Symbol]
		if !ok {
			byDate = make(map[string]float64)
			s.data.Benchmarks[p.Symbol] = byDate
		}
		byDate[models.Day(p.Date).Format(models.DateLayout)] = p.Close
	}
	return s.commit()
}

// BenchmarkPrices returns cached closes for symbol in the closed range, ascending.
func (s *MemoryStorage) BenchmarkPrices(_ context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.BenchmarkPrice
	for key, v := range s.data.Benchmarks[symbol] {
		d, err := time.Parse(models.DateLayout, key)
		if err != nil {
			return nil, fmt.Errorf("corrupt benchmark date %q: %w", key, err)
		}
		if inRange(d, from, to) {
			out = append(out, models.BenchmarkPrice{Symbol: symbol, Date: d, Close: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// DeleteBenchmarkPrices clears the cache for symbol.
func (s *MemoryStorage) DeleteBenchmarkPrices(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginWrite(); err != nil {
		return err
	}
	delete(s.data.Benchmarks, symbol)
	return s.commit()
}

// Close is a no-op; JSON storage is flushed on every write.
func (s *MemoryStorage) Close() error {
	return nil
}
