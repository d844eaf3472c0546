package auth

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

func TestPairingStore_CreateAndLookup(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	code, err := store.Create("req-1")
	require.NoError(t, err)
	assert.Regexp(t, codePattern, code)

	entry, ok, expired := store.Lookup(code)
	assert.True(t, ok)
	assert.False(t, expired)
	assert.Equal(t, "req-1", entry.requestID)
}

func TestPairingStore_UnknownCode(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	_, ok, expired := store.Lookup("123456")
	assert.False(t, ok)
	assert.False(t, expired)
}

func TestPairingStore_Expiry(t *testing.T) {
	store := NewPairingStore(10 * time.Millisecond)

	code, err := store.Create("req-1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, ok, expired := store.Lookup(code)
	assert.True(t, ok, "expired codes stay visible until cleanup")
	assert.True(t, expired)

	store.CleanupExpired()
	_, ok, _ = store.Lookup(code)
	assert.False(t, ok)
}

func TestPairingStore_CleanupKeepsFreshCodes(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	code, err := store.Create("req-1")
	require.NoError(t, err)

	store.CleanupExpired()
	_, ok, _ := store.Lookup(code)
	assert.True(t, ok)
}

func TestPairingStore_Consume(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	code, err := store.Create("req-1")
	require.NoError(t, err)

	store.Consume(code)
	_, ok, _ := store.Lookup(code)
	assert.False(t, ok)

	// Consuming an unknown code is a no-op.
	store.Consume("000000")
}

func TestPairingStore_Clear(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	first, err := store.Create("req-1")
	require.NoError(t, err)
	second, err := store.Create("req-2")
	require.NoError(t, err)

	store.Clear()

	_, ok, _ := store.Lookup(first)
	assert.False(t, ok)
	_, ok, _ = store.Lookup(second)
	assert.False(t, ok)
}

func TestPairingStore_PendingCodesDistinct(t *testing.T) {
	store := NewPairingStore(5 * time.Minute)

	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		code, err := store.Create("req")
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "code %s issued twice", code)
		seen[code] = struct{}{}
	}
}

func TestRandomPairingCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := randomPairingCode()
		require.NoError(t, err)
		require.Regexp(t, codePattern, code)
	}
}
