package blobsvc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
)

// MemoryStore keeps files in memory. Used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ core.BlobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Store(ctx context.Context, folder string, file core.File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.NewStorageError(err)
	}
	data, err := io.ReadAll(file.Content)
	if err != nil {
		return "", core.NewStorageError(errors.Wrap(err, "reading file"))
	}
	url := "mem://" + folder + "/" + publicID(file.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[url] = data
	return url, nil
}

// Get returns the content stored under url.
func (s *MemoryStore) Get(url string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[url]
	return data, ok
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// FailingStore forwards to another store until Fail is switched on, then fails every upload
// as an unreachable provider would.
type FailingStore struct {
	next    core.BlobStore
	failing int32
}

var _ core.BlobStore = (*FailingStore)(nil)

// NewFailingStore returns a store that starts failing; a nil next keeps it failing for good.
func NewFailingStore(next core.BlobStore) *FailingStore {
	s := &FailingStore{next: next}
	s.Fail(true)
	return s
}

func (s *FailingStore) Fail(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&s.failing, v)
}

func (s *FailingStore) Store(ctx context.Context, folder string, file core.File) (string, error) {
	if atomic.LoadInt32(&s.failing) == 1 || s.next == nil {
		return "", core.NewStorageError(errors.New("blob store unavailable"))
	}
	return s.next.Store(ctx, folder, file)
}
