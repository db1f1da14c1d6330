// Package memory provides an in-process storage.ObjectStore used by
// tests. It mirrors the promote semantics of the minio implementation:
// copy first, then delete.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hollowbrook/kbflow/storage"
)

// object is one stored value with its metadata.
type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// Store is an in-memory ObjectStore. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object

	// ListErr, when set, is returned by List. Used to simulate an
	// unreachable source.
	ListErr error

	// PromoteErr, when set, is returned by Promote before any mutation.
	PromoteErr error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{objects: make(map[string]*object)}
}

// Put stores an object, computing its fingerprint from the bytes.
func (s *Store) Put(key string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    time.Now().UTC(),
	}
}

// Metadata returns the user metadata recorded for key, or nil.
func (s *Store) Metadata(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[key]; ok {
		return obj.metadata
	}
	return nil
}

// Keys returns all stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// List implements storage.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []storage.ObjectInfo
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, "/") {
			continue
		}
		infos = append(infos, storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			Fingerprint:  fingerprint(obj.data),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Get implements storage.ObjectStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}

	info := storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		Fingerprint:  fingerprint(obj.data),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
	}
	return append([]byte(nil), obj.data...), info, nil
}

// Promote implements storage.ObjectStore: copy with metadata, then delete.
func (s *Store) Promote(ctx context.Context, srcKey, destKey string, metadata map[string]string) error {
	if s.PromoteErr != nil {
		return s.PromoteErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.objects[srcKey]
	if !ok {
		return storage.ErrNotFound
	}

	s.objects[destKey] = &object{
		data:        append([]byte(nil), src.data...),
		contentType: src.contentType,
		metadata:    metadata,
		modified:    time.Now().UTC(),
	}
	delete(s.objects, srcKey)
	return nil
}

// Remove implements storage.ObjectStore.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

var _ storage.ObjectStore = (*Store)(nil)
