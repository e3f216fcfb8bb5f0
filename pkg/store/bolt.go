package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	rootBucket     = []byte("configs")
	versionsBucket = []byte("versions")
	metaKey        = []byte("meta")
	historyKey     = []byte("history")
	activeKey      = []byte("active")
)

// DefaultBoltFile is the database file name used when only a directory is
// configured.
const DefaultBoltFile = "configs.db"

// BoltOptions configures the bbolt backend.
type BoltOptions struct {
	// Path is the database file. Parent directories are created.
	Path string

	// Timeout bounds how long Open waits for the file lock.
	// Default: 1 second
	Timeout time.Duration

	Logger   *slog.Logger
	Codec    Codec
	Recorder Recorder
}

// NewBoltStore opens a bbolt-backed VersionManager. Each key owns a bucket
// holding its snapshots, metadata, history and active copy; every write is
// one bbolt transaction.
func NewBoltStore(opts BoltOptions) (*VersionedStore, error) {
	if opts.Path == "" {
		return nil, newError(KindInvalidArgument, "open", "", errors.New("bolt store path is required"))
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), dirPerm); err != nil {
		return nil, newError(KindIOFailure, "open", "", fmt.Errorf("failed to create database directory: %w", err))
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, newError(KindIOFailure, "open", "", fmt.Errorf("failed to open bolt db: %w", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, newError(KindIOFailure, "open", "", fmt.Errorf("failed to create bucket: %w", err))
	}

	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	b := &boltBackend{db: db, codec: codec}
	return newVersionedStore(KindBolt, b, codec, opts.Logger, opts.Recorder), nil
}

type boltBackend struct {
	db    *bolt.DB
	codec Codec
}

func versionKey(v int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func copyBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// view runs fn against the key's bucket, which is nil when the key is unknown.
func (b *boltBackend) view(op, key string, fn func(kb *bolt.Bucket) error) error {
	err := b.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(rootBucket).Bucket([]byte(key)))
	})
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			return err
		}
		return newError(KindIOFailure, op, key, err)
	}
	return nil
}

func (b *boltBackend) get(op, key string, name []byte) ([]byte, error) {
	var data []byte
	err := b.view(op, key, func(kb *bolt.Bucket) error {
		if kb != nil {
			data = copyBytes(kb.Get(name))
		}
		return nil
	})
	return data, err
}

func (b *boltBackend) readMeta(_ context.Context, key string) (*Metadata, error) {
	data, err := b.get("read_metadata", key, metaKey)
	if err != nil || data == nil {
		return nil, err
	}
	var meta Metadata
	if err := b.codec.Unmarshal(data, &meta); err != nil {
		return nil, newError(KindCorruptData, "read_metadata", key, err)
	}
	return &meta, nil
}

func (b *boltBackend) readActive(_ context.Context, key string) ([]byte, bool, error) {
	data, err := b.get("read_active", key, activeKey)
	return data, data != nil, err
}

func (b *boltBackend) readVersion(_ context.Context, key string, version int) ([]byte, bool, error) {
	var data []byte
	err := b.view("read_version", key, func(kb *bolt.Bucket) error {
		if kb == nil {
			return nil
		}
		if vb := kb.Bucket(versionsBucket); vb != nil {
			data = copyBytes(vb.Get(versionKey(version)))
		}
		return nil
	})
	return data, data != nil, err
}

func (b *boltBackend) readHistory(_ context.Context, key string) ([]VersionInfo, error) {
	data, err := b.get("read_history", key, historyKey)
	if err != nil || data == nil {
		return nil, err
	}
	var history []VersionInfo
	if err := b.codec.Unmarshal(data, &history); err != nil {
		return nil, newError(KindCorruptData, "read_history", key, err)
	}
	return history, nil
}

func (b *boltBackend) listVersions(_ context.Context, key string) ([]int, error) {
	versions := []int{}
	err := b.view("list_versions", key, func(kb *bolt.Bucket) error {
		if kb == nil {
			return nil
		}
		vb := kb.Bucket(versionsBucket)
		if vb == nil {
			return nil
		}
		return vb.ForEach(func(k, _ []byte) error {
			if len(k) == 8 {
				versions = append(versions, int(binary.BigEndian.Uint64(k)))
			}
			return nil
		})
	})
	return versions, err
}

func (b *boltBackend) update(op, key string, fn func(kb *bolt.Bucket) error) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		kb, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		return fn(kb)
	})
	if err != nil {
		return newError(KindIOFailure, op, key, err)
	}
	return nil
}

func (b *boltBackend) commit(ctx context.Context, c commitSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	history, err := b.codec.Marshal(c.history)
	if err != nil {
		return newError(KindIOFailure, "commit", c.key, err)
	}
	meta, err := b.codec.Marshal(c.meta)
	if err != nil {
		return newError(KindIOFailure, "commit", c.key, err)
	}

	return b.update("commit", c.key, func(kb *bolt.Bucket) error {
		vb, err := kb.CreateBucketIfNotExists(versionsBucket)
		if err != nil {
			return err
		}
		if err := vb.Put(versionKey(c.info.Version), c.data); err != nil {
			return err
		}
		if err := kb.Put(historyKey, history); err != nil {
			return err
		}
		if err := kb.Put(metaKey, meta); err != nil {
			return err
		}
		return kb.Put(activeKey, c.data)
	})
}

func (b *boltBackend) prune(ctx context.Context, p pruneSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	history, err := b.codec.Marshal(p.history)
	if err != nil {
		return newError(KindIOFailure, "prune", p.key, err)
	}
	meta, err := b.codec.Marshal(p.meta)
	if err != nil {
		return newError(KindIOFailure, "prune", p.key, err)
	}

	return b.update("prune", p.key, func(kb *bolt.Bucket) error {
		if vb := kb.Bucket(versionsBucket); vb != nil {
			for _, v := range p.versions {
				if err := vb.Delete(versionKey(v)); err != nil {
					return err
				}
			}
		}
		if err := kb.Put(historyKey, history); err != nil {
			return err
		}
		return kb.Put(metaKey, meta)
	})
}

func (b *boltBackend) deleteAll(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(rootBucket).DeleteBucket([]byte(key))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return newError(KindIOFailure, "delete", key, err)
	}
	return nil
}

func (b *boltBackend) keys(_ context.Context) ([]string, error) {
	keys := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEach(func(k, v []byte) error {
			// Nested buckets have nil values.
			if v == nil {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, newError(KindIOFailure, "keys", "", err)
	}
	return keys, nil
}

func (b *boltBackend) close() error {
	return b.db.Close()
}
