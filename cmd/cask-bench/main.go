package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/dd0wney/caskdb/pkg/logging"
	"github.com/dd0wney/caskdb/pkg/store"
)

func main() {
	keys := flag.Int("keys", 100000, "Number of keys to write")
	valueSize := flag.Int("value-size", 256, "Value size in bytes")
	reads := flag.Int("reads", 100000, "Number of random reads")
	segmentSize := flag.Int64("segment-size", 16*1024*1024, "Segment rollover threshold in bytes")
	sync := flag.String("sync", "interval", "Sync policy: every_write or interval")
	compression := flag.String("compression", "none", "Value compression: none or snappy")
	dataDir := flag.String("data", "./data/bench", "Data directory")
	keep := flag.Bool("keep", false, "Keep the data directory after the run")
	flag.Parse()

	fmt.Printf("🔥 CaskDB Benchmark\n")
	fmt.Printf("===================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Keys: %d\n", *keys)
	fmt.Printf("  Value Size: %d bytes\n", *valueSize)
	fmt.Printf("  Reads: %d\n", *reads)
	fmt.Printf("  Segment Threshold: %d bytes\n", *segmentSize)
	fmt.Printf("  Sync Policy: %s\n", *sync)
	fmt.Printf("  Compression: %s\n", *compression)
	fmt.Printf("  Data Directory: %s\n\n", *dataDir)

	cfg := store.DefaultConfig()
	cfg.SegmentSizeThreshold = *segmentSize
	cfg.Sync = store.SyncPolicy(*sync)
	cfg.Compression = store.Compression(*compression)
	cfg.Logger = logging.NewNopLogger()

	fmt.Printf("📂 Opening store...\n")
	s, err := store.Open(*dataDir, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		s.Close()
		if !*keep {
			os.RemoveAll(*dataDir)
		}
	}()

	value := make([]byte, *valueSize)
	rand.Read(value)

	// Benchmark 1: Sequential Writes
	fmt.Printf("\n📝 Benchmark 1: Sequential Writes\n")
	start := time.Now()

	for i := 0; i < *keys; i++ {
		key := []byte(fmt.Sprintf("key:%012d", i))
		if err := s.Put(key, value); err != nil {
			log.Fatalf("Failed to put: %v", err)
		}

		if (i+1)%10000 == 0 {
			fmt.Printf("  Wrote %d keys...\n", i+1)
		}
	}

	duration := time.Since(start)
	fmt.Printf("  ✅ Wrote %d keys in %v\n", *keys, duration)
	fmt.Printf("  ⚡ Average: %.2fμs per write\n", float64(duration.Microseconds())/float64(*keys))
	fmt.Printf("  🚀 Throughput: %.0f writes/sec\n", float64(*keys)/duration.Seconds())

	// Benchmark 2: Random Reads
	fmt.Printf("\n🔍 Benchmark 2: Random Reads\n")
	start = time.Now()
	misses := 0

	for i := 0; i < *reads; i++ {
		key := []byte(fmt.Sprintf("key:%012d", rand.Intn(*keys)))
		_, found, err := s.Get(key)
		if err != nil {
			log.Fatalf("Failed to get: %v", err)
		}
		if !found {
			misses++
		}

		if (i+1)%10000 == 0 {
			fmt.Printf("  Read %d keys...\n", i+1)
		}
	}

	duration = time.Since(start)
	fmt.Printf("  ✅ Read %d keys in %v (%d misses)\n", *reads, duration, misses)
	fmt.Printf("  ⚡ Average: %.2fμs per read\n", float64(duration.Microseconds())/float64(*reads))
	fmt.Printf("  🚀 Throughput: %.0f reads/sec\n", float64(*reads)/duration.Seconds())

	// Benchmark 3: Overwrite + Compaction
	fmt.Printf("\n♻️  Benchmark 3: Overwrite + Compaction\n")
	for i := 0; i < *keys/2; i++ {
		key := []byte(fmt.Sprintf("key:%012d", i))
		if err := s.Put(key, value); err != nil {
			log.Fatalf("Failed to overwrite: %v", err)
		}
	}

	before := s.Stats()
	result, err := s.Compact()
	if err != nil {
		log.Fatalf("Failed to compact: %v", err)
	}
	after := s.Stats()

	fmt.Printf("  ✅ Compacted %d segments in %v\n", result.SegmentsCompacted, result.Duration)
	fmt.Printf("  📉 Segments: %d → %d\n", before.Segments, after.Segments)
	fmt.Printf("  💾 Reclaimed: %.2f MiB\n", float64(result.BytesReclaimed)/(1024*1024))

	fmt.Printf("\n✨ Benchmark complete\n")
}
