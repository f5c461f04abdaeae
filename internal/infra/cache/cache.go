package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/jianpian/internal/infra/fsx"
	"github.com/John-Robertt/jianpian/internal/infra/imgx"
)

// DefaultMaxBytes 是封面缓存的默认容量上限。
const DefaultMaxBytes int64 = 100 << 20

const maxCoverDownload = 10 << 20

// Store 提供 <data_dir>/covers/ 下的封面缩略图缓存。
//
// 约束：
// - ReadOnly=true 时不写盘也不清理：命中缓存直接返回，未命中时下载并缩放后直接返回（serve --covers-readonly）
// - 写入总是经过 imgx 缩放，磁盘上只存 JPEG
type Store struct {
	Root     string // <data_dir>
	ReadOnly bool

	// HTTP 为空时 Fetch 不可用（只能读已有缓存）。
	HTTP  *http.Client
	Width int
	Log   *log.Logger

	mu sync.Mutex
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) *Store {
	return &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		Width:    imgx.DefaultCoverWidth,
		Log:      log.Default(),
	}
}

func (s *Store) dir() string { return filepath.Join(s.Root, "covers") }

// CoverPath 返回封面缓存的绝对路径。
func (s *Store) CoverPath(movieID string) (string, error) {
	id, err := cleanID(movieID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir(), id+".jpg"), nil
}

func (s *Store) ReadCover(movieID string) ([]byte, bool, error) {
	path, err := s.CoverPath(movieID)
	if err != nil {
		return nil, false, err
	}
	return fsx.ReadFile(path)
}

// WriteCover 缩放 img 并写入缓存。
func (s *Store) WriteCover(movieID string, img []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	id, err := cleanID(movieID)
	if err != nil {
		return err
	}
	thumb, err := imgx.ThumbnailJPEG(img, s.Width)
	if err != nil {
		return fmt.Errorf("封面缩放失败：%w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsx.WriteFileAtomic(s.dir(), id+".jpg", thumb)
}

// Cover 返回封面缩略图：命中缓存直接返回，否则下载 coverURL 并写入缓存。
func (s *Store) Cover(ctx context.Context, movieID, coverURL string) ([]byte, error) {
	if b, ok, err := s.ReadCover(movieID); err != nil {
		return nil, err
	} else if ok {
		return b, nil
	}
	if s.HTTP == nil {
		return nil, errors.New("封面未缓存且未配置下载 client")
	}
	coverURL = strings.TrimSpace(coverURL)
	if coverURL == "" {
		return nil, errors.New("封面地址为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("下载封面失败：HTTP %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverDownload))
	if err != nil {
		return nil, err
	}

	if s.ReadOnly {
		return imgx.ThumbnailJPEG(raw, s.Width)
	}
	if err := s.WriteCover(movieID, raw); err != nil {
		return nil, err
	}
	b, _, err := s.ReadCover(movieID)
	return b, err
}

// Prune 按修改时间从旧到新删除封面，直到总大小不超过 maxBytes。
// 返回删除的文件数与释放的字节数。
func (s *Store) Prune(maxBytes int64) (int, int64, error) {
	if s.ReadOnly {
		return 0, 0, ErrReadOnly
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	type file struct {
		path string
		size int64
		mod  int64
	}
	files := make([]file, 0, len(entries))
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(s.dir(), e.Name()), size: fi.Size(), mod: fi.ModTime().UnixNano()})
		total += fi.Size()
	}
	if total <= maxBytes {
		return 0, 0, nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	removed := 0
	var freed int64
	for _, f := range files {
		if total <= maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return removed, freed, err
		}
		total -= f.size
		freed += f.size
		removed++
	}
	s.Log.Info("封面缓存已清理", "removed", removed, "freed", humanize.Bytes(uint64(freed)), "remaining", humanize.Bytes(uint64(total)))
	return removed, freed, nil
}

var movieIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func cleanID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("movie id 不能为空")
	}
	// 最小约束：避免路径穿越；站点 id 目前都是纯数字。
	if !movieIDRE.MatchString(id) {
		return "", fmt.Errorf("非法 movie id：%q", id)
	}
	return id, nil
}
