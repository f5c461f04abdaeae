package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_ReplaceAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "history.json", []byte("[1]")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "history.json", []byte("[2]")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}

	b, ok, err := ReadFile(filepath.Join(dir, "history.json"))
	if err != nil || !ok {
		t.Fatalf("读取文件失败：ok=%v err=%v", ok, err)
	}
	if string(b) != "[2]" {
		t.Fatalf("期望覆盖后的内容，实际 %q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".history.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_KeepsOld(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomic(dir, "a.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	old := rename
	rename = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { rename = old }()

	if err := WriteFileAtomic(dir, "a.json", []byte("new")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	b, _, _ := ReadFile(filepath.Join(dir, "a.json"))
	if string(b) != "old" {
		t.Fatalf("rename 失败时应保留旧内容，实际 %q", string(b))
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.json"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomic(dir, "a.json", []byte("x"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestReadFile_Missing(t *testing.T) {
	b, ok, err := ReadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || ok || b != nil {
		t.Fatalf("不存在的文件期望 (nil,false,nil)，实际 (%v,%v,%v)", b, ok, err)
	}
}
