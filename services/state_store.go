package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tuitionflow/models"
	"tuitionflow/storage"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Snapshot keys in the state backend
const (
	KeyStudents    = "tf_students"
	KeyHistory     = "tf_history"
	KeySheetConfig = "tf_sheet_config"
	KeySheetToken  = "tf_sheet_token"
)

// State is the complete application state held in memory
type State struct {
	Students []models.Student       `json:"students"`
	History  []models.PaymentRecord `json:"history"`
	Sheet    models.SheetConfig     `json:"sheetConfig"`
}

func (st State) clone() State {
	return State{
		Students: append([]models.Student(nil), st.Students...),
		History:  append([]models.PaymentRecord(nil), st.History...),
		Sheet:    st.Sheet,
	}
}

// FindStudent returns the index of the student with id, or -1.
func (st *State) FindStudent(id string) int {
	for i := range st.Students {
		if st.Students[i].ID == id {
			return i
		}
	}
	return -1
}

// StateObserver is told which snapshot key changed after a committed mutation.
type StateObserver func(key string)

// StateStore keeps the roster, payment history and sheet settings, writing a
// full snapshot of every changed record through to the backend.
type StateStore struct {
	mu        sync.Mutex
	backend   storage.Backend
	state     State
	observers []StateObserver
}

func NewStateStore(backend storage.Backend) *StateStore {
	return &StateStore{backend: backend}
}

// DemoRoster is the sample class used for a first run with SEED_DEMO=true.
func DemoRoster() []models.Student {
	mustDate := func(s string) models.Date {
		d, _ := models.ParseDate(s)
		return d
	}
	paid := mustDate("2024-07-05")
	return []models.Student{
		{ID: "1", Name: "Anshu", ParentName: "Mr. Sharma", ParentPhone: "919876543210",
			JoiningDate: mustDate("2024-06-15"), MonthlyFee: 2000, Status: models.StatusPending},
		{ID: "2", Name: "Aman", ParentName: "Mrs. Verma", ParentPhone: "919876543211",
			JoiningDate: mustDate("2024-01-05"), MonthlyFee: 1500, Status: models.StatusPaid, LastPaymentDate: &paid},
		{ID: "3", Name: "Riya", ParentName: "Mr. Singh", ParentPhone: "919876543212",
			JoiningDate: mustDate("2024-03-20"), MonthlyFee: 2500, Status: models.StatusExempt},
	}
}

// Load reads every snapshot from the backend. Missing records start empty;
// an unreadable record is an error.
func (s *StateStore) Load(ctx context.Context, seedDemo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	foundStudents, err := s.loadKey(ctx, KeyStudents, &st.Students)
	if err != nil {
		return err
	}
	if _, err := s.loadKey(ctx, KeyHistory, &st.History); err != nil {
		return err
	}
	if _, err := s.loadKey(ctx, KeySheetConfig, &st.Sheet); err != nil {
		return err
	}

	if !foundStudents && seedDemo {
		st.Students = DemoRoster()
		if err := s.persist(ctx, KeyStudents, st.Students); err != nil {
			return err
		}
		log.WithField("students", len(st.Students)).Info("Seeded demo roster")
	}

	s.state = st
	log.WithFields(log.Fields{
		"backend":  s.backend.Name(),
		"students": len(st.Students),
		"records":  len(st.History),
	}).Info("State loaded")
	return nil
}

func (s *StateStore) loadKey(ctx context.Context, key string, into interface{}) (bool, error) {
	data, err := s.backend.Load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("corrupt %s snapshot: %w", key, err)
	}
	return true, nil
}

func (s *StateStore) persist(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Subscribe registers fn to run after every committed mutation.
func (s *StateStore) Subscribe(fn StateObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns a copy of the current state.
func (s *StateStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Mutate runs fn on a copy of the state. fn returns the keys it changed; those
// snapshots are written before the copy replaces the live state, so a failed
// write leaves memory untouched.
func (s *StateStore) Mutate(ctx context.Context, fn func(st *State) ([]string, error)) error {
	s.mu.Lock()
	next := s.state.clone()
	changed, err := fn(&next)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, key := range changed {
		var v interface{}
		switch key {
		case KeyStudents:
			v = next.Students
		case KeyHistory:
			v = next.History
		case KeySheetConfig:
			v = next.Sheet
		default:
			s.mu.Unlock()
			return fmt.Errorf("unknown state key %q", key)
		}
		if err := s.persist(ctx, key, v); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.state = next
	observers := append([]StateObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, key := range changed {
		for _, fn := range observers {
			fn(key)
		}
	}
	return nil
}

// SheetToken implements TokenStore. A cleared token reads back as nil.
func (s *StateStore) SheetToken(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.backend.Load(ctx, KeySheetToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", KeySheetToken, err)
	}
	var tok *oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt %s snapshot: %w", KeySheetToken, err)
	}
	return tok, nil
}

// SaveSheetToken implements TokenStore. A nil token clears the stored one.
func (s *StateStore) SaveSheetToken(ctx context.Context, tok *oauth2.Token) error {
	return s.persist(ctx, KeySheetToken, tok)
}

// Export returns the raw JSON of every snapshot, for backups.
func (s *StateStore) Export() (map[string][]byte, error) {
	st := s.Snapshot()
	out := make(map[string][]byte, 3)
	for key, v := range map[string]interface{}{
		KeyStudents:    st.Students,
		KeyHistory:     st.History,
		KeySheetConfig: st.Sheet,
	} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = data
	}
	return out, nil
}
