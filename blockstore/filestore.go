package blockstore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileStore implements Store on the local filesystem.
// Blocks are stored at: {baseDir}/{hex(key[10])}/{hex(key)}
// The low byte of version_id picks the shard directory so consecutive writes
// to one write space spread across shards.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	log     logrus.FieldLogger
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-based block store rooted at baseDir.
// The directory is created if it does not exist.
func NewFileStore(baseDir string, log logrus.FieldLogger) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return &FileStore{
		baseDir: baseDir,
		log:     orDiscard(log).WithField("store", "file"),
	}, nil
}

// KeyToPath converts a block key to its filesystem path.
func KeyToPath(baseDir string, key Key) string {
	return filepath.Join(baseDir, shardName(key), key.String())
}

func shardName(key Key) string {
	return hex.EncodeToString(key[KeySize-1:])
}

// Insert writes block under key. The write goes to a temporary file that is
// renamed into place, so concurrent readers never see a partial block.
func (fs *FileStore) Insert(key Key, block []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	shard := filepath.Join(fs.baseDir, shardName(key))
	if err := os.MkdirAll(shard, 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(shard, ".insert-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(block); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, KeyToPath(fs.baseDir, key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	fs.log.WithField("key", key.String()).WithField("size", len(block)).Debug("block inserted")
	return nil
}

// Get reads the block stored under key.
func (fs *FileStore) Get(key Key) ([]byte, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(KeyToPath(fs.baseDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return data, true, nil
}

// List returns all stored keys by scanning the shard directories.
func (fs *FileStore) List() ([]Key, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result []Key
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			key, err := ParseKey(f.Name())
			if err != nil {
				continue // temp files and foreign names
			}
			result = append(result, key)
		}
	}
	return result, nil
}
