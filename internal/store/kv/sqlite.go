package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	busyTimeoutMs     = 5000
	walAutoCheckpoint = 1000
	maxOpenConns      = 4
	maxIdleConns      = 2
)

// SQLiteStore 把所有 namespace 放进一张 kv 表（WAL 模式）。
type SQLiteStore struct {
	db *sql.DB

	getPS    *sql.Stmt
	putPS    *sql.Stmt
	deletePS *sql.Stmt
}

// OpenSQLite 打开（必要时创建）dbPath 处的数据库。
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, err
	}

	p := dbPath
	if runtime.GOOS == "windows" {
		p = strings.ReplaceAll(p, `\`, "/")
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&_busy_timeout=%d",
		p, walAutoCheckpoint, busyTimeoutMs)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败：%w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS kv (
		namespace  TEXT    NOT NULL,
		key        TEXT    NOT NULL,
		value      BLOB    NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("建表失败：%w", err)
	}
	return nil
}

func (s *SQLiteStore) prepare() error {
	var err error
	if s.getPS, err = s.db.Prepare(`SELECT value FROM kv WHERE namespace = ? AND key = ?`); err != nil {
		return fmt.Errorf("预编译 get 失败：%w", err)
	}
	if s.putPS, err = s.db.Prepare(`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`); err != nil {
		return fmt.Errorf("预编译 put 失败：%w", err)
	}
	if s.deletePS, err = s.db.Prepare(`DELETE FROM kv WHERE namespace = ? AND key = ?`); err != nil {
		return fmt.Errorf("预编译 delete 失败：%w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(namespace, key string) ([]byte, bool, error) {
	if err := checkNames(namespace, key); err != nil {
		return nil, false, err
	}
	var b []byte
	err := s.getPS.QueryRow(namespace, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *SQLiteStore) Put(namespace, key string, value []byte) error {
	if err := checkNames(namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.putPS.Exec(namespace, key, value, time.Now().UnixMilli())
	return err
}

func (s *SQLiteStore) Delete(namespace, key string) error {
	if err := checkNames(namespace, key); err != nil {
		return err
	}
	_, err := s.deletePS.Exec(namespace, key)
	return err
}

func (s *SQLiteStore) Close() error {
	for _, ps := range []*sql.Stmt{s.getPS, s.putPS, s.deletePS} {
		if ps != nil {
			_ = ps.Close()
		}
	}
	return s.db.Close()
}
