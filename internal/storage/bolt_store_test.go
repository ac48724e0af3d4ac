package storage

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func TestBoltStoreCachesAndExpiresFeeds(t *testing.T) {
	opts := Options{
		FeedTTL:         time.Minute,
		CleanupInterval: time.Hour,
	}

	storeRaw, err := openBolt(filepath.Join(t.TempDir(), "nested", "feeds.db"), opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	clock := time.Now()
	store.now = func() time.Time { return clock }

	if _, found, err := store.LookupFeed("https://blog.example/"); err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}

	if err := store.StoreFeed("https://blog.example/", "https://blog.example/rss"); err != nil {
		t.Fatalf("StoreFeed: %v", err)
	}

	feed, found, err := store.LookupFeed("https://blog.example/")
	if err != nil || !found || feed != "https://blog.example/rss" {
		t.Fatalf("expected cached feed, got feed=%q found=%v err=%v", feed, found, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, found, err := store.LookupFeed("https://blog.example/"); err != nil || found {
		t.Fatalf("expected expired entry, found=%v err=%v", found, err)
	}
}

func TestBoltStoreCleanupSweepsExpired(t *testing.T) {
	storeRaw, err := openBolt(filepath.Join(t.TempDir(), "feeds.db"), Options{
		FeedTTL:         time.Second,
		CleanupInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	clock := time.Now()
	store.now = func() time.Time { return clock }
	if err := store.StoreFeed("a", "https://a.example/rss"); err != nil {
		t.Fatalf("StoreFeed: %v", err)
	}

	clock = clock.Add(10 * time.Second)
	if err := store.maybeCleanupExpired(clock); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	var remaining int
	if err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(feedBucket)).ForEach(func(_, _ []byte) error {
			remaining++
			return nil
		})
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected sweep to remove entries, %d left", remaining)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.StoreFeed("x", "y"); err != nil {
		t.Fatalf("noop store StoreFeed: %v", err)
	}
	if _, found, _ := store.LookupFeed("x"); found {
		t.Fatalf("noop store should never hit")
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
