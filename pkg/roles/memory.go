package roles

import (
	"context"
	"sync"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
)

// MemoryStore is an in-process [auth.RoleStore]. Its contents are lost on
// restart. The zero value is not usable; call [NewMemoryStore].
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]map[auth.Role]struct{}
}

var _ auth.RoleStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{roles: make(map[string]map[auth.Role]struct{})}
}

func (s *MemoryStore) HasRole(_ context.Context, subject string, role auth.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[subject][role]
	return ok, nil
}

func (s *MemoryStore) AddRole(_ context.Context, subject string, role auth.Role) (bool, error) {
	if err := validateAssignment(subject, role); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.roles[subject]
	if !ok {
		held = make(map[auth.Role]struct{})
		s.roles[subject] = held
	}
	if _, dup := held[role]; dup {
		return false, nil
	}
	held[role] = struct{}{}
	return true, nil
}

func (s *MemoryStore) RemoveRole(_ context.Context, subject string, role auth.Role) error {
	if err := validateAssignment(subject, role); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[subject], role)
	if len(s.roles[subject]) == 0 {
		delete(s.roles, subject)
	}
	return nil
}

func (s *MemoryStore) RemoveAllRoles(_ context.Context, subject string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.roles[subject]))
	delete(s.roles, subject)
	return n, nil
}

func (s *MemoryStore) AnyWithRole(_ context.Context, role auth.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, held := range s.roles {
		if _, ok := held[role]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Health always succeeds.
func (s *MemoryStore) Health(context.Context) error { return nil }
