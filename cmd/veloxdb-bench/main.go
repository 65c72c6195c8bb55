// Command veloxdb-bench is a small driver that exercises Open, Put, Get,
// and Stats against a StoreConfig, for manual smoke testing of the storage
// engine; it runs no range scans. Grounded on the teacher's cmd/benchmark-lsm driver, adapted from
// byte-slice keys to the store's tagged record.Value keys.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/kkli08/veloxdb/pkg/config"
	"github.com/kkli08/veloxdb/pkg/lsm"
	"github.com/kkli08/veloxdb/pkg/record"
)

func main() {
	dir := flag.String("dir", "./data/veloxdb-bench", "database directory")
	writes := flag.Int("writes", 50000, "number of int64-keyed writes")
	reads := flag.Int("reads", 5000, "number of random point lookups after the write pass")
	threshold := flag.Int("memtable-threshold", 1000, "memtable entry threshold before a flush")
	growthRatio := flag.Int("growth-ratio", 10, "level capacity growth ratio")
	cachePolicy := flag.String("cache-policy", "lru", "buffer pool eviction policy: lru, clock, or random")
	flag.Parse()

	fmt.Println("veloxdb storage benchmark")
	fmt.Printf("  dir=%s writes=%d reads=%d memtable_threshold=%d growth_ratio=%d cache_policy=%s\n",
		*dir, *writes, *reads, *threshold, *growthRatio, *cachePolicy)

	if err := os.RemoveAll(*dir); err != nil {
		log.Fatalf("clearing %s: %v", *dir, err)
	}

	cfg := config.Default(*dir)
	cfg.MemtableThreshold = *threshold
	cfg.GrowthRatio = *growthRatio
	cfg.CachePolicy = config.CachePolicy(*cachePolicy)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db, err := lsm.Open(cfg)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer db.Close()

	fmt.Println("\nwrite pass")
	start := time.Now()
	for i := 0; i < *writes; i++ {
		rec := record.New(record.Int64Key(int64(i)), record.Int64Key(int64(i)*7))
		if err := db.Put(rec); err != nil {
			log.Fatalf("put %d: %v", i, err)
		}
		if (i+1)%10000 == 0 {
			fmt.Printf("  wrote %d entries\n", i+1)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("wrote %d entries in %v (%.0f writes/sec)\n", *writes, elapsed, float64(*writes)/elapsed.Seconds())

	fmt.Println("\nread pass")
	start = time.Now()
	found := 0
	for i := 0; i < *reads; i++ {
		k := int64(rand.Intn(*writes))
		_, ok, err := db.Get(record.New(record.Int64Key(k), record.Value{}))
		if err != nil {
			log.Fatalf("get %d: %v", k, err)
		}
		if ok {
			found++
		}
	}
	elapsed = time.Since(start)
	fmt.Printf("read %d keys in %v (%.0f reads/sec), %d/%d found\n",
		*reads, elapsed, float64(*reads)/elapsed.Seconds(), found, *reads)

	snap := db.Stats()
	fmt.Println("\nfinal level occupancy")
	fmt.Printf("  memtable: %d entries\n", snap.MemtableSize)
	for _, lv := range snap.Levels {
		fmt.Printf("  level %d: %d/%d entries\n", lv.Level, lv.Entries, lv.Capacity)
	}
}
