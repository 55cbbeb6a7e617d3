package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/quasilyte/gdata"
)

const pendingItemKey = "pending-results"

// GDataStore keeps pending results in the application's gdata directory.
type GDataStore struct {
	m *gdata.Manager
}

func OpenGDataStore(appName string) (*GDataStore, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, fmt.Errorf("open gdata: %w", err)
	}
	return &GDataStore{m: m}, nil
}

func (s *GDataStore) Load() ([]PendingResult, error) {
	data, err := s.m.LoadItem(pendingItemKey)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pending []PendingResult
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return pending, nil
}

func (s *GDataStore) Save(pending []PendingResult) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := s.m.SaveItem(pendingItemKey, data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
