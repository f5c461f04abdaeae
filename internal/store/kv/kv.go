// Package kv 是本地持久化的最小键值抽象：每个 namespace 下若干 key，value 为不透明字节。
//
// 约束：
// - 不存在的 key 返回 ok=false，而不是错误
// - 后端不理解 value 内容（JSON 编解码由上层 store 负责）
package kv

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Store 是持久化后端。实现必须并发安全。
type Store interface {
	Get(namespace, key string) ([]byte, bool, error)
	Put(namespace, key string, value []byte) error
	Delete(namespace, key string) error
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrClosed 表示后端已关闭。
var ErrClosed = errors.New("kv: closed")

var nameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// checkName 避免路径穿越；namespace/key 在代码里都是常量，这里只做最小约束。
func checkName(kind, s string) error {
	if !nameRE.MatchString(s) {
		return fmt.Errorf("非法 %s：%q", kind, s)
	}
	return nil
}

func checkNames(namespace, key string) error {
	if err := checkName("namespace", namespace); err != nil {
		return err
	}
	return checkName("key", key)
}

// Open 按 backend 名称打开 dataDir 下的存储。
func Open(backend, dataDir string) (Store, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("data_dir 不能为空")
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileStore(filepath.Join(dataDir, "kv")), nil
	case BackendSQLite:
		s, err := OpenSQLite(filepath.Join(dataDir, "jianpian.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("未知存储后端：%q（可选 file/sqlite）", backend)
	}
}
