package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

var (
	ErrStoreRead   = errors.New("device store: read failed")
	ErrStoreFormat = errors.New("device store: invalid format")
	ErrStoreWrite  = errors.New("device store: write failed")
)

// Store persists device details as a JSON object keyed by user ID.
type Store struct {
	mu   sync.Mutex
	path string
	gen  *Generator
}

func NewStore(path string, gen *Generator) *Store {
	return &Store{path: path, gen: gen}
}

func (s *Store) Path() string { return s.path }

// Load returns the raw document. The content is validated as JSON but not
// reshaped, so fields written by other tools survive the round trip.
func (s *Store) Load() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		logger.Errorf("[DeviceStore] read %s: %v", s.path, err)
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	if !json.Valid(data) {
		logger.Errorf("[DeviceStore] %s is not valid JSON", s.path)
		return nil, ErrStoreFormat
	}
	return json.RawMessage(data), nil
}

// AddProfiles assigns a fresh android/ios/web triple to every user, replacing
// existing entries. A missing or corrupt file starts from an empty document.
func (s *Store) AddProfiles(userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readDocument()
	for _, id := range userIDs {
		raw, err := json.Marshal(s.gen.Profiles())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		doc[id] = raw
	}
	return s.write(doc)
}

// ReplaceAll overwrites the document with details.
func (s *Store) ReplaceAll(details models.DeviceDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(map[string]json.RawMessage, len(details))
	for id, profiles := range details {
		raw, err := json.Marshal(profiles)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		doc[id] = raw
	}
	return s.write(doc)
}

// ProfileFor returns the stored profile of userID for dt, if one exists and parses.
func (s *Store) ProfileFor(userID string, dt models.DeviceType) (models.DeviceProfile, bool) {
	s.mu.Lock()
	doc := s.readDocument()
	s.mu.Unlock()

	raw, ok := doc[userID]
	if !ok {
		return models.DeviceProfile{}, false
	}
	var profiles []models.DeviceProfile
	if err := json.Unmarshal(raw, &profiles); err != nil {
		logger.Warnf("[DeviceStore] profiles for %s do not parse: %v", userID, err)
		return models.DeviceProfile{}, false
	}
	idx := dt.Code() - 1
	if idx >= len(profiles) {
		return models.DeviceProfile{}, false
	}
	return profiles[idx], true
}

// Has reports whether the document holds an entry for userID, usable or not.
func (s *Store) Has(userID string) bool {
	s.mu.Lock()
	doc := s.readDocument()
	s.mu.Unlock()

	_, ok := doc[userID]
	return ok
}

// UserIDs lists the users that have stored profiles.
func (s *Store) UserIDs() []string {
	s.mu.Lock()
	doc := s.readDocument()
	s.mu.Unlock()

	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	return ids
}

// readDocument must be called with s.mu held.
func (s *Store) readDocument() map[string]json.RawMessage {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warnf("[DeviceStore] %s is corrupt, starting fresh: %v", s.path, err)
		return map[string]json.RawMessage{}
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc
}

// write must be called with s.mu held. The file is replaced atomically.
func (s *Store) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Errorf("[DeviceStore] mkdir %s: %v", dir, err)
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	tmp, err := os.CreateTemp(dir, ".device_details-*.json")
	if err != nil {
		logger.Errorf("[DeviceStore] temp file in %s: %v", dir, err)
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		logger.Errorf("[DeviceStore] rename into %s: %v", s.path, err)
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	logger.Infof("[DeviceStore] wrote %d users to %s", len(doc), s.path)
	return nil
}
