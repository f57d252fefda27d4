package memory

import (
	"context"
	"sync"

	"github.com/liminalvillage/integral-sub001/internal/oad"
)

// OADStore is a goroutine-safe in-memory oad.Store.
type OADStore struct {
	mu             sync.RWMutex
	specs          map[string]oad.Spec
	versions       map[string]oad.Version
	certifications map[string]oad.CertificationRecord
	// certByVersion indexes the latest certification requested for a
	// version; request_certification is expected to be called at most once
	// per version in the current lifecycle (a superseding request would
	// replace this).
	certByVersion map[string]string
}

// NewOADStore constructs an empty in-memory oad.Store.
func NewOADStore() *OADStore {
	return &OADStore{
		specs:          make(map[string]oad.Spec),
		versions:       make(map[string]oad.Version),
		certifications: make(map[string]oad.CertificationRecord),
		certByVersion:  make(map[string]string),
	}
}

func (s *OADStore) PutSpec(_ context.Context, v oad.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[v.ID] = v
	return nil
}

func (s *OADStore) GetSpec(_ context.Context, id string) (oad.Spec, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.specs[id]
	return v, ok, nil
}

func (s *OADStore) PutVersion(_ context.Context, v oad.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID] = v
	return nil
}

func (s *OADStore) GetVersion(_ context.Context, id string) (oad.Version, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	return v, ok, nil
}

func (s *OADStore) PutCertification(_ context.Context, c oad.CertificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certifications[c.ID] = c
	s.certByVersion[c.VersionID] = c.ID
	return nil
}

func (s *OADStore) GetCertification(_ context.Context, id string) (oad.CertificationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certifications[id]
	return c, ok, nil
}

func (s *OADStore) CertificationByVersion(_ context.Context, versionID string) (oad.CertificationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.certByVersion[versionID]
	if !ok {
		return oad.CertificationRecord{}, false, nil
	}
	c, ok := s.certifications[id]
	return c, ok, nil
}
