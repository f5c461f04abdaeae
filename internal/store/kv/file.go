package kv

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/John-Robertt/jianpian/internal/infra/fsx"
)

// FileStore 把每个 key 存为 <root>/<namespace>/<key>.json。
//
// 约束：写入走 fsx.WriteFileAtomic，进程崩溃不会留下半截文件。
type FileStore struct {
	root string

	mu     sync.RWMutex
	closed bool
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(strings.TrimSpace(root))}
}

func (s *FileStore) path(namespace, key string) string {
	return filepath.Join(s.root, namespace, key+".json")
}

func (s *FileStore) Get(namespace, key string) ([]byte, bool, error) {
	if err := checkNames(namespace, key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	return fsx.ReadFile(s.path(namespace, key))
}

func (s *FileStore) Put(namespace, key string, value []byte) error {
	if err := checkNames(namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fsx.WriteFileAtomic(filepath.Join(s.root, namespace), key+".json", value)
}

func (s *FileStore) Delete(namespace, key string) error {
	if err := checkNames(namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := os.Remove(s.path(namespace, key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
