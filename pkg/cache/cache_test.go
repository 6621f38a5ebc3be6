package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type snapshot struct {
	PlayerID string `json:"player_id"`
	Score    float64
}

func TestGetPopulatesBothTiersOnMiss(t *testing.T) {
	kv := newFakeKV()
	var loads int
	loader := func(_ context.Context, id string) (snapshot, error) {
		loads++
		return snapshot{PlayerID: id, Score: 0.5}, nil
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	got, err := c.Get(context.Background(), "p1", false)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlayerID)
	assert.Equal(t, 1, loads)

	raw, _ := kv.Get(context.Background(), "story:snapshot:p1")
	var decoded snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 0.5, decoded.Score)
}

func TestGetHitsL1WithoutCallingLoader(t *testing.T) {
	kv := newFakeKV()
	var loads int
	loader := func(_ context.Context, id string) (snapshot, error) {
		loads++
		return snapshot{PlayerID: id}, nil
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "p1", false)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "p1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
}

func TestGetForceRefreshBypassesBothTiers(t *testing.T) {
	kv := newFakeKV()
	var loads int
	loader := func(_ context.Context, id string) (snapshot, error) {
		loads++
		return snapshot{PlayerID: id}, nil
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	_, _ = c.Get(context.Background(), "p1", false)
	_, err = c.Get(context.Background(), "p1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestGetPropagatesLoaderErrorWithoutPopulating(t *testing.T) {
	kv := newFakeKV()
	wantErr := errors.New("state manager unavailable")
	loader := func(_ context.Context, id string) (snapshot, error) {
		return snapshot{}, wantErr
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "p1", false)
	assert.ErrorIs(t, err, wantErr)

	raw, _ := kv.Get(context.Background(), "story:snapshot:p1")
	assert.Nil(t, raw)
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	kv := newFakeKV()
	loader := func(_ context.Context, id string) (snapshot, error) {
		return snapshot{PlayerID: id}, nil
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	_, _ = c.Get(context.Background(), "p1", false)
	require.NoError(t, c.Invalidate(context.Background(), "p1"))

	_, ok := c.getL1("p1")
	assert.False(t, ok)
	raw, _ := kv.Get(context.Background(), "story:snapshot:p1")
	assert.Nil(t, raw)
}

func TestL1OverflowEvictsEarliestExpiry(t *testing.T) {
	kv := newFakeKV()
	loader := func(_ context.Context, id string) (snapshot, error) {
		return snapshot{PlayerID: id}, nil
	}
	c, err := New(Config{L1Capacity: 2, TTL: time.Hour, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	// p1 gets the earliest expires_at by being inserted with a shorter
	// effective TTL than the others.
	c.putL1("p1", snapshot{PlayerID: "p1"})
	c.l1.Add("p1", entry[snapshot]{value: snapshot{PlayerID: "p1"}, expiresAt: time.Now().Add(time.Millisecond)})
	c.putL1("p2", snapshot{PlayerID: "p2"})
	c.putL1("p3", snapshot{PlayerID: "p3"})

	_, ok := c.getL1("p1")
	assert.False(t, ok, "p1 had the earliest expires_at and should be evicted on overflow")
	_, ok = c.getL1("p2")
	assert.True(t, ok)
	_, ok = c.getL1("p3")
	assert.True(t, ok)
}

func TestWarmFansOutForceRefresh(t *testing.T) {
	kv := newFakeKV()
	var mu sync.Mutex
	loaded := make(map[string]bool)
	loader := func(_ context.Context, id string) (snapshot, error) {
		mu.Lock()
		loaded[id] = true
		mu.Unlock()
		return snapshot{PlayerID: id}, nil
	}
	c, err := New(Config{L1Capacity: 10, TTL: time.Minute, KeyPrefix: "story:snapshot:"}, kv, loader, nil)
	require.NoError(t, err)

	c.Warm(context.Background(), []string{"p1", "p2", "p3"})

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, loaded["p1"])
	assert.True(t, loaded["p2"])
	assert.True(t, loaded["p3"])
}
