package e2e

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/metrics"
	"github.com/dd0wney/caskdb/pkg/store"
)

func openTestStore(t *testing.T, dir string) *store.Store {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.SegmentSizeThreshold = 1024
	cfg.Logger = logging.NewNopLogger()
	cfg.Metrics = metrics.NewRegistry()

	s, err := store.Open(dir, cfg)
	require.NoError(t, err, "store should open")
	return s
}

// TestCompleteStoreLifecycle exercises a full user journey: a burn-in write
// load, point reads, deletes, a crash-free restart, and a compaction cycle.
func TestCompleteStoreLifecycle(t *testing.T) {
	dir := t.TempDir()

	t.Log("=== E2E Test: Complete Store Lifecycle ===")

	// Step 1: Write a working set large enough to roll several segments
	t.Log("Step 1: Writing initial working set...")
	s := openTestStore(t, dir)

	value := bytes.Repeat([]byte("payload-"), 16)
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("user:%04d", i))
		require.NoError(t, s.Put(key, append(value, byte(i))))
	}
	t.Logf("✓ Wrote 50 keys across %d segments", s.Stats().Segments)

	// Step 2: Overwrite half the keys and delete a quarter
	t.Log("Step 2: Overwriting and deleting...")
	for i := 0; i < 50; i += 2 {
		key := []byte(fmt.Sprintf("user:%04d", i))
		require.NoError(t, s.Put(key, []byte("updated")))
	}
	for i := 0; i < 50; i += 4 {
		key := []byte(fmt.Sprintf("user:%04d", i))
		require.NoError(t, s.Delete(key))
	}
	t.Log("✓ Applied overwrites and deletes")

	// Step 3: Verify reads before restart
	t.Log("Step 3: Verifying reads...")
	verify := func(s *store.Store) {
		for i := 0; i < 50; i++ {
			key := []byte(fmt.Sprintf("user:%04d", i))
			got, found, err := s.Get(key)
			require.NoError(t, err)
			switch {
			case i%4 == 0:
				assert.False(t, found, "deleted key %s should be absent", key)
			case i%2 == 0:
				require.True(t, found, "key %s should exist", key)
				assert.Equal(t, []byte("updated"), got)
			default:
				require.True(t, found, "key %s should exist", key)
				assert.Equal(t, append(value, byte(i)), got)
			}
		}
	}
	verify(s)
	t.Log("✓ All reads consistent")

	// Step 4: Restart and verify recovery rebuilt the same state
	t.Log("Step 4: Restarting store...")
	require.NoError(t, s.Close())
	s = openTestStore(t, dir)
	verify(s)
	t.Log("✓ Recovery rebuilt identical state")

	// Step 5: Compact and verify again
	t.Log("Step 5: Compacting...")
	stats, err := s.Compact()
	require.NoError(t, err)
	assert.Positive(t, stats.SegmentsCompacted, "compaction should retire segments")
	t.Logf("✓ Compacted %d segments, reclaimed %d bytes", stats.SegmentsCompacted, stats.BytesReclaimed)
	verify(s)

	// Step 6: Restart once more on the compacted directory
	t.Log("Step 6: Restarting on compacted directory...")
	require.NoError(t, s.Close())
	s = openTestStore(t, dir)
	defer s.Close()
	verify(s)
	t.Log("✓ Compacted state survives restart")
}

// TestCompressedStoreLifecycle runs the same journey with snappy values.
func TestCompressedStoreLifecycle(t *testing.T) {
	dir := t.TempDir()

	cfg := store.DefaultConfig()
	cfg.SegmentSizeThreshold = 1024
	cfg.Compression = store.CompressionSnappy
	cfg.Logger = logging.NewNopLogger()
	cfg.Metrics = metrics.NewRegistry()

	s, err := store.Open(dir, cfg)
	require.NoError(t, err)

	// Highly compressible payload
	value := bytes.Repeat([]byte("aaaaaaaa"), 64)
	for i := 0; i < 30; i++ {
		require.NoError(t, s.Put([]byte(fmt.Sprintf("key-%d", i)), value))
	}

	require.NoError(t, s.Close())

	s, err = store.Open(dir, cfg)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 30; i++ {
		got, found, err := s.Get([]byte(fmt.Sprintf("key-%d", i)))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, value, got)
	}

	_, err = s.Compact()
	require.NoError(t, err)

	got, found, err := s.Get([]byte("key-0"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)
}
