package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ferry-booking-client/internal/logging"
	"ferry-booking-client/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noNativeID(ctx context.Context) (string, error) {
	return "", errors.New("not available")
}

func TestDeviceIdentity_Stable(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	provider, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(noNativeID))
	require.NoError(t, err)

	first, err := provider.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	second, err := provider.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	_, err = uuid.Parse(first)
	assert.NoError(t, err, "fallback id should be a UUID")

	// simulated restart: same storage, fresh in-memory state
	restarted, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(func(ctx context.Context) (string, error) {
		return "different-native-id", nil
	}))
	require.NoError(t, err)

	afterRestart, err := restarted.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, afterRestart)
}

func TestDeviceIdentity_PrefersNativeID(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	provider, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(func(ctx context.Context) (string, error) {
		return "  ABCDEF-1234 \n", nil
	}))
	require.NoError(t, err)

	id, err := provider.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcdef-1234", id)

	values, err := kv.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, "abcdef-1234", values[KeyDeviceID])
}

func TestDeviceIdentity_ConcurrentFirstCalls(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	var generated int32
	provider, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&generated, 1)
		return uuid.NewString(), nil
	}))
	require.NoError(t, err)

	const callers = 20
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := provider.GetOrCreateDeviceID(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&generated))
}

func TestDeviceIdentity_TwoProvidersShareStore(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	a, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(noNativeID))
	require.NoError(t, err)
	b, err := NewDeviceIdentity(kv, logging.NewNopLogger(), WithNativeIDSource(noNativeID))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var idA, idB string
	wg.Add(2)
	go func() { defer wg.Done(); idA, _ = a.GetOrCreateDeviceID(ctx) }()
	go func() { defer wg.Done(); idB, _ = b.GetOrCreateDeviceID(ctx) }()
	wg.Wait()

	assert.NotEmpty(t, idA)
	assert.Equal(t, idA, idB)
}

func TestDeviceIdentity_StorageError(t *testing.T) {
	boom := errors.New("read failed")
	provider, err := NewDeviceIdentity(&failingKV{err: boom}, logging.NewNopLogger(), WithNativeIDSource(noNativeID))
	require.NoError(t, err)

	_, err = provider.GetOrCreateDeviceID(context.Background())
	assert.ErrorIs(t, err, boom)
}
