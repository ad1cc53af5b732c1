package bench

import (
	"bytes"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/google/btree"
	bolt "go.etcd.io/bbolt"
	_ "modernc.org/sqlite"

	"idxtree"
)

var (
	benchIdxtree = flag.Bool("idxtree", false, "run only idxtree benchmarks")
)

const (
	benchKeySize   = 16
	benchValueSize = 64
	benchDegree    = 32
	benchKeys      = 2000 // distinct keys
	benchDups      = 5    // entries per key
)

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("key-%06d", i))
}

// dupKey makes a unique ordered key for stores without duplicate support:
// the indexed key followed by the entry sequence number.
func dupKey(i, seq int) []byte {
	return []byte(fmt.Sprintf("key-%06d/%04d", i, seq))
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}

// Duplicate Insert Benchmarks

func BenchmarkDuplicateInsert(b *testing.B) {
	value := bytes.Repeat([]byte{'v'}, benchValueSize)

	b.Run("Idxtree", func(b *testing.B) {
		tree, err := idxtree.CreateFile(filepath.Join(b.TempDir(), "bench.db"),
			benchDegree, benchKeySize, benchValueSize, idxtree.WithSyncOnSave(false))
		if err != nil {
			b.Fatal(err)
		}
		defer tree.Close()
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if err := tree.Add(benchKey(i%benchKeys), value); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Bbolt", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db, _ := bolt.Open(filepath.Join(b.TempDir(), "bench.db"), 0600, &bolt.Options{NoSync: true})
		defer db.Close()
		db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucket([]byte("test"))
			return err
		})
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			key := dupKey(i%benchKeys, i/benchKeys)
			db.Update(func(tx *bolt.Tx) error {
				return tx.Bucket([]byte("test")).Put(key, value)
			})
		}
	})

	b.Run("Pebble", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db, _ := pebble.Open(filepath.Join(b.TempDir(), "pebble"), &pebble.Options{Logger: nil})
		defer db.Close()
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			db.Set(dupKey(i%benchKeys, i/benchKeys), value, pebble.NoSync)
		}
	})

	b.Run("GoogleBTree", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		tr := btree.NewG[entry](benchDegree, entryLess)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			tr.ReplaceOrInsert(entry{key: benchKey(i % benchKeys), seq: i, value: value})
		}
	})

	b.Run("SQLite", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db := openSQLite(b)
		defer db.Close()
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			db.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", benchKey(i%benchKeys), value)
		}
	})
}

// Duplicate Scan Benchmarks

func BenchmarkDuplicateScan(b *testing.B) {
	value := bytes.Repeat([]byte{'v'}, benchValueSize)
	rng := rand.New(rand.NewSource(1))

	b.Run("Idxtree", func(b *testing.B) {
		tree, err := idxtree.CreateFile(filepath.Join(b.TempDir(), "bench.db"),
			benchDegree, benchKeySize, benchValueSize, idxtree.WithSyncOnSave(false))
		if err != nil {
			b.Fatal(err)
		}
		defer tree.Close()
		for seq := 0; seq < benchDups; seq++ {
			for i := 0; i < benchKeys; i++ {
				if err := tree.Add(benchKey(i), value); err != nil {
					b.Fatal(err)
				}
			}
		}
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			c, err := tree.Select(benchKey(rng.Intn(benchKeys)))
			if err != nil {
				b.Fatal(err)
			}
			n := 0
			c.ForEach(func([]byte) error {
				n++
				return nil
			})
			if n != benchDups {
				b.Fatalf("got %d entries, want %d", n, benchDups)
			}
		}
	})

	b.Run("Bbolt", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db, _ := bolt.Open(filepath.Join(b.TempDir(), "bench.db"), 0600, &bolt.Options{NoSync: true})
		defer db.Close()
		db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucket([]byte("test"))
			if err != nil {
				return err
			}
			for seq := 0; seq < benchDups; seq++ {
				for i := 0; i < benchKeys; i++ {
					if err := bucket.Put(dupKey(i, seq), value); err != nil {
						return err
					}
				}
			}
			return nil
		})
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			prefix := append(benchKey(rng.Intn(benchKeys)), '/')
			db.View(func(tx *bolt.Tx) error {
				c := tx.Bucket([]byte("test")).Cursor()
				for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
				}
				return nil
			})
		}
	})

	b.Run("Pebble", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db, _ := pebble.Open(filepath.Join(b.TempDir(), "pebble"), &pebble.Options{Logger: nil})
		defer db.Close()
		batch := db.NewBatch()
		for seq := 0; seq < benchDups; seq++ {
			for i := 0; i < benchKeys; i++ {
				batch.Set(dupKey(i, seq), value, nil)
			}
		}
		db.Apply(batch, pebble.NoSync)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			prefix := append(benchKey(rng.Intn(benchKeys)), '/')
			iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
			if err != nil {
				b.Fatal(err)
			}
			for iter.First(); iter.Valid(); iter.Next() {
			}
			iter.Close()
		}
	})

	b.Run("GoogleBTree", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		tr := btree.NewG[entry](benchDegree, entryLess)
		for seq := 0; seq < benchDups; seq++ {
			for i := 0; i < benchKeys; i++ {
				tr.ReplaceOrInsert(entry{key: benchKey(i), seq: seq, value: value})
			}
		}
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			key := benchKey(rng.Intn(benchKeys))
			tr.AscendGreaterOrEqual(entry{key: key, seq: -1}, func(e entry) bool {
				return bytes.Equal(e.key, key)
			})
		}
	})

	b.Run("SQLite", func(b *testing.B) {
		if *benchIdxtree {
			b.Skip()
		}
		db := openSQLite(b)
		defer db.Close()
		tx, _ := db.Begin()
		for seq := 0; seq < benchDups; seq++ {
			for i := 0; i < benchKeys; i++ {
				tx.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", benchKey(i), value)
			}
		}
		tx.Commit()
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			rows, err := db.Query("SELECT value FROM kv WHERE key = ?", benchKey(rng.Intn(benchKeys)))
			if err != nil {
				b.Fatal(err)
			}
			for rows.Next() {
			}
			rows.Close()
		}
	})
}

// entry is a duplicate-key item for google/btree, ordered by key then seq
type entry struct {
	key   []byte
	seq   int
	value []byte
}

func entryLess(a, b entry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// openSQLite returns a table with a non-unique secondary index on key
func openSQLite(b *testing.B) *sql.DB {
	b.Helper()

	db, err := sql.Open("sqlite", filepath.Join(b.TempDir(), "bench.sqlite"))
	if err != nil {
		b.Fatal(err)
	}
	db.Exec("PRAGMA synchronous=OFF")
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("CREATE TABLE kv (id INTEGER PRIMARY KEY, key BLOB, value BLOB)")
	db.Exec("CREATE INDEX kv_key ON kv (key)")
	return db
}
