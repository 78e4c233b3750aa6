package roles

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-gatekeeper/internal/testutil"
	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

func TestMemoryStore_AddHasRemove(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.HasRole(ctx, "u1", auth.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	inserted, err := s.AddRole(ctx, "u1", auth.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AddRole(ctx, "u1", auth.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, inserted)

	ok, _ = s.HasRole(ctx, "u1", auth.RoleAdmin)
	assert.True(t, ok)

	require.NoError(t, s.RemoveRole(ctx, "u1", auth.RoleAdmin))
	require.NoError(t, s.RemoveRole(ctx, "u1", auth.RoleAdmin))
	ok, _ = s.HasRole(ctx, "u1", auth.RoleAdmin)
	assert.False(t, ok)
}

func TestMemoryStore_RoleNamesAreExact(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	_, _ = s.AddRole(context.Background(), "u1", "Admin")

	ok, _ := s.HasRole(context.Background(), "u1", auth.RoleAdmin)
	assert.False(t, ok)
}

func TestMemoryStore_RemoveAllRolesAndAnyWithRole(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	found, err := s.AnyWithRole(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, found)

	_, _ = s.AddRole(ctx, "u1", auth.RoleAdmin)
	_, _ = s.AddRole(ctx, "u1", auth.RoleUser)
	_, _ = s.AddRole(ctx, "u2", auth.RoleUser)

	found, _ = s.AnyWithRole(ctx, auth.RoleAdmin)
	assert.True(t, found)

	held, _ := s.HasRole(ctx, "u1", auth.RoleUser)
	assert.True(t, held)

	n, err := s.RemoveAllRoles(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	found, _ = s.AnyWithRole(ctx, auth.RoleAdmin)
	assert.False(t, found)
	held, _ = s.HasRole(ctx, "u1", auth.RoleUser)
	assert.False(t, held)
}

func TestMemoryStore_Validation(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	_, err := s.AddRole(context.Background(), "", auth.RoleAdmin)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	testutil.RequireErrorCode(t, s.RemoveRole(context.Background(), "u1", ""), sserr.CodeValidationRequired)
}

func TestMemoryStore_ConcurrentAddInsertsOnce(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	var inserted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AddRole(context.Background(), "u1", auth.RoleAdmin)
			if err == nil && ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), inserted.Load())
}

func TestMemoryStore_ManySubjects(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := s.AddRole(ctx, fmt.Sprintf("u%d", i), auth.RoleUser)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		ok, _ := s.HasRole(ctx, fmt.Sprintf("u%d", i), auth.RoleUser)
		assert.True(t, ok)
	}
	assert.NoError(t, s.Health(ctx))
}
