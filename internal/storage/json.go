package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
)

// JSONStorage keeps every book in memory and, when a path is set, mirrors it
// to a JSON file written atomically on each change.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *Data
}

// Data is the persisted document.
type Data struct {
	Books       []*models.Book              `json:"books"`
	Sequences   map[models.EntityKind]int64 `json:"sequences"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// NewMemoryStorage returns a JSONStorage that never touches disk.
func NewMemoryStorage() *JSONStorage {
	return &JSONStorage{data: emptyData()}
}

// NewJSONStorage opens or creates the JSON file at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("json storage requires a file path")
	}
	s := &JSONStorage{filepath: path, data: emptyData()}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking storage file: %w", err)
	}
	return s, nil
}

func emptyData() *Data {
	return &Data{Books: []*models.Book{}, Sequences: map[models.EntityKind]int64{}}
}

func (s *JSONStorage) load() error {
	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	data := emptyData()
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	if data.Sequences == nil {
		data.Sequences = map[models.EntityKind]int64{}
	}
	s.data = data
	return nil
}

// persist writes data to disk. Callers hold the write lock and swap data in
// only after persist succeeds.
func (s *JSONStorage) persist(data *Data) error {
	if s.filepath == "" {
		return nil
	}
	data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding storage: %w", err)
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating storage dir: %w", err)
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return fmt.Errorf("writing storage: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("replacing storage: %w", err)
	}
	return nil
}

// shallow copies the document so a failed persist leaves s.data untouched.
func (d *Data) shallow() *Data {
	out := &Data{
		Books:     make([]*models.Book, len(d.Books)),
		Sequences: make(map[models.EntityKind]int64, len(d.Sequences)),
	}
	copy(out.Books, d.Books)
	for k, v := range d.Sequences {
		out.Sequences[k] = v
	}
	return out
}

func (d *Data) book(id int64) (int, bool) {
	for i, b := range d.Books {
		if b.Account.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *JSONStorage) commit(next *Data) error {
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// ListAccounts returns all accounts ordered by id.
func (s *JSONStorage) ListAccounts(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(s.data.Books))
	for _, b := range s.data.Books {
		out = append(out, b.Account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAccount returns one account.
func (s *JSONStorage) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.data.book(id)
	if !ok {
		return nil, &models.NotFoundError{Entity: "account", ID: id}
	}
	a := s.data.Books[i].Account
	return &a, nil
}

// CreateAccount assigns the next account id and stores an empty book.
func (s *JSONStorage) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.shallow()
	next.Sequences[models.KindAccount]++
	account.ID = next.Sequences[models.KindAccount]
	account.IsActive = false
	next.Books = append(next.Books, models.NewBook(*account))
	return s.commit(next)
}

// UpdateAccount replaces the account's fields, keeping its active flag.
func (s *JSONStorage) UpdateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.data.book(account.ID)
	if !ok {
		return &models.NotFoundError{Entity: "account", ID: account.ID}
	}
	next := s.data.shallow()
	b := *next.Books[i]
	account.IsActive = b.Account.IsActive
	account.CreatedAt = b.Account.CreatedAt
	b.Account = *account
	next.Books[i] = &b
	return s.commit(next)
}

// SetActiveAccount makes id the only active account.
func (s *JSONStorage) SetActiveAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.book(id); !ok {
		return &models.NotFoundError{Entity: "account", ID: id}
	}
	next := s.data.shallow()
	for i, b := range next.Books {
		if b.Account.IsActive == (b.Account.ID == id) {
			continue
		}
		c := *b
		c.Account.IsActive = c.Account.ID == id
		c.Account.UpdatedAt = time.Now().UTC()
		next.Books[i] = &c
	}
	return s.commit(next)
}

// ActiveAccount returns the active account.
func (s *JSONStorage) ActiveAccount(_ context.Context) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Books {
		if b.Account.IsActive {
			a := b.Account
			return &a, nil
		}
	}
	return nil, ErrNoActiveAccount
}

// LoadBook returns a private copy of one account's book.
func (s *JSONStorage) LoadBook(_ context.Context, accountID int64) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.data.book(accountID)
	if !ok {
		return nil, &models.NotFoundError{Entity: "account", ID: accountID}
	}
	return s.data.Books[i].Clone(), nil
}

// LoadBooks returns private copies of every book, ordered by account id.
func (s *JSONStorage) LoadBooks(_ context.Context) ([]*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Book, 0, len(s.data.Books))
	for _, b := range s.data.Books {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.ID < out[j].Account.ID })
	return out, nil
}

// SaveBooks replaces the trades, positions and wheels of each book's account.
// Either every book is stored or none is.
func (s *JSONStorage) SaveBooks(_ context.Context, books ...*models.Book) error {
	if len(books) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.shallow()
	for _, b := range books {
		i, ok := next.book(b.Account.ID)
		if !ok {
			return &models.NotFoundError{Entity: "account", ID: b.Account.ID}
		}
		stored := b.Clone()
		stored.Account = next.Books[i].Account
		next.Books[i] = stored
	}
	return s.commit(next)
}

// NextID allocates the next id of kind.
func (s *JSONStorage) NextID(_ context.Context, kind models.EntityKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.shallow()
	next.Sequences[kind]++
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return next.Sequences[kind], nil
}

// Owner finds the account owning a trade, position or wheel.
func (s *JSONStorage) Owner(_ context.Context, kind models.EntityKind, id int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Books {
		var ok bool
		switch kind {
		case models.KindTrade:
			_, ok = b.Trade(id)
		case models.KindPosition:
			_, ok = b.Position(id)
		case models.KindWheel:
			_, ok = b.Wheel(id)
		case models.KindAccount:
			ok = b.Account.ID == id
		}
		if ok {
			return b.Account.ID, nil
		}
	}
	return 0, &models.NotFoundError{Entity: string(kind), ID: id}
}

// Close is a no-op; every change is already on disk.
func (s *JSONStorage) Close() error { return nil }
