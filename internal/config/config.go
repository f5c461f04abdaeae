package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是数据目录下自动发现的配置文件名。
const FileName = "jianpian.json"

const (
	DefaultBaseURL              = "https://vodjp.com/"
	DefaultStore                = "file"
	DefaultListen               = ":8080"
	DefaultPageCacheTTL         = 5 * time.Minute
	DefaultPlayURLTTL           = 7 * 24 * time.Hour
	DefaultPositionSaveInterval = 5 * time.Second
	DefaultCoverCacheMaxMB      = 100
)

// 环境变量（优先级介于 CLI 与配置文件之间）。
const (
	EnvDataDir  = "JIANPIAN_DATA_DIR"
	EnvBaseURL  = "JIANPIAN_BASE_URL"
	EnvProxy    = "JIANPIAN_PROXY"
	EnvInsecure = "JIANPIAN_INSECURE"
	EnvStore    = "JIANPIAN_STORE"
	EnvListen   = "JIANPIAN_LISTEN"
	EnvLogLevel = "JIANPIAN_LOG_LEVEL"
)

// CLIArgs 保留“是否显式指定”的信息，保证 --insecure=false 这类参数能覆盖配置文件。
type CLIArgs struct {
	ConfigPath string

	DataDir string

	BaseURL string

	Store string

	Listen string

	LogLevel string

	Insecure    bool
	InsecureSet bool
}

// FileConfig 对应 jianpian.json 的解析结构。
type FileConfig struct {
	BaseURL                     string       `json:"base_url"`
	Mirrors                     []string     `json:"mirrors"`
	DataDir                     string       `json:"data_dir"`
	Store                       string       `json:"store"`
	Proxy                       *ProxyConfig `json:"proxy"`
	InsecureSkipVerify          *bool        `json:"insecure_skip_verify"`
	PageCacheTTLSeconds         *int         `json:"page_cache_ttl_seconds"`
	PlayURLTTLHours             int          `json:"play_url_ttl_hours"`
	PositionSaveIntervalSeconds int          `json:"position_save_interval_seconds"`
	CoverCacheMaxMB             int          `json:"cover_cache_max_mb"`
	Listen                      string       `json:"listen"`
	LogLevel                    string       `json:"log_level"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置。
type EffectiveConfig struct {
	ConfigPath string // 实际读取的配置文件；未读取时为空

	DataDir string
	Store   string

	BaseURL            string
	Mirrors            []string
	ProxyURL           string
	InsecureSkipVerify bool

	// PageCacheTTL < 0 表示关闭页面缓存。
	PageCacheTTL         time.Duration
	PlayURLTTL           time.Duration
	PositionSaveInterval time.Duration
	CoverCacheMaxBytes   int64

	Listen   string
	LogLevel string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupFunc 与 os.LookupEnv 同签名，便于测试注入环境变量。
type LookupFunc func(string) (string, bool)

// DefaultDataDir 返回用户配置目录下的 jianpian 目录；拿不到时回退到 ./.jianpian。
func DefaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "jianpian")
	}
	return ".jianpian"
}

// LoadEffective 发现并读取配置文件，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：必须存在
// 2) 否则读取 <data_dir>/jianpian.json（可选），data_dir 取 CLI > env > 默认
//
// 覆盖优先级：CLI > env > 配置文件 > 默认。
func LoadEffective(cwd string, cli CLIArgs, env LookupFunc) (EffectiveConfig, error) {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	dataDir := firstNonEmpty(cli.DataDir, envValue(env, EnvDataDir))
	dataDirSet := dataDir != ""
	if !dataDirSet {
		dataDir = DefaultDataDir()
	}
	dataDir = absCleanFrom(cwdAbs, dataDir)

	var (
		cfgPath string
		fc      FileConfig
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		p := filepath.Join(dataDir, FileName)
		var exists bool
		fc, exists, err = readFileConfig(p)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if exists {
			cfgPath = p
		}
	}

	// 配置文件里的 data_dir 只在 CLI/env 都未指定时生效（相对路径以配置文件所在目录为基准）。
	if !dataDirSet && strings.TrimSpace(fc.DataDir) != "" {
		base := cwdAbs
		if cfgPath != "" {
			base = filepath.Dir(cfgPath)
		}
		dataDir = absCleanFrom(base, fc.DataDir)
	}

	return merge(dataDir, cli, env, fc, cfgPath)
}

func merge(dataDir string, cli CLIArgs, env LookupFunc, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	eff := EffectiveConfig{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		Store:      strings.ToLower(firstNonEmpty(cli.Store, envValue(env, EnvStore), fc.Store, DefaultStore)),
		BaseURL:    firstNonEmpty(cli.BaseURL, envValue(env, EnvBaseURL), fc.BaseURL, DefaultBaseURL),
		Listen:     firstNonEmpty(cli.Listen, envValue(env, EnvListen), fc.Listen, DefaultListen),
		LogLevel:   strings.ToLower(firstNonEmpty(cli.LogLevel, envValue(env, EnvLogLevel), fc.LogLevel, "info")),
	}

	switch eff.Store {
	case "file", "sqlite":
	default:
		return invalid(fmt.Errorf("store 只能是 file 或 sqlite，实际是 %q", eff.Store))
	}

	if err := validateSiteURL("base_url", eff.BaseURL); err != nil {
		return invalid(err)
	}
	for _, m := range fc.Mirrors {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if err := validateSiteURL("mirrors", m); err != nil {
			return invalid(err)
		}
		eff.Mirrors = append(eff.Mirrors, m)
	}

	proxyURL := envValue(env, EnvProxy)
	if proxyURL == "" && fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("proxy.url 无效：%q", proxyURL))
		}
	}
	eff.ProxyURL = proxyURL

	// insecure：CLI > env > config > 默认 false
	switch {
	case cli.InsecureSet:
		eff.InsecureSkipVerify = cli.Insecure
	case envValue(env, EnvInsecure) != "":
		v, err := strconv.ParseBool(envValue(env, EnvInsecure))
		if err != nil {
			return invalid(fmt.Errorf("%s 必须是布尔值：%w", EnvInsecure, err))
		}
		eff.InsecureSkipVerify = v
	case fc.InsecureSkipVerify != nil:
		eff.InsecureSkipVerify = *fc.InsecureSkipVerify
	}

	eff.PageCacheTTL = DefaultPageCacheTTL
	if fc.PageCacheTTLSeconds != nil {
		switch s := *fc.PageCacheTTLSeconds; {
		case s < 0:
			return invalid(fmt.Errorf("page_cache_ttl_seconds 不能为负数"))
		case s == 0:
			eff.PageCacheTTL = -1 // 显式 0：关闭页面缓存
		default:
			eff.PageCacheTTL = time.Duration(s) * time.Second
		}
	}

	if fc.PlayURLTTLHours < 0 || fc.PositionSaveIntervalSeconds < 0 || fc.CoverCacheMaxMB < 0 {
		return invalid(fmt.Errorf("play_url_ttl_hours/position_save_interval_seconds/cover_cache_max_mb 不能为负数"))
	}
	eff.PlayURLTTL = DefaultPlayURLTTL
	if fc.PlayURLTTLHours > 0 {
		eff.PlayURLTTL = time.Duration(fc.PlayURLTTLHours) * time.Hour
	}
	eff.PositionSaveInterval = DefaultPositionSaveInterval
	if fc.PositionSaveIntervalSeconds > 0 {
		eff.PositionSaveInterval = time.Duration(fc.PositionSaveIntervalSeconds) * time.Second
	}
	mb := DefaultCoverCacheMaxMB
	if fc.CoverCacheMaxMB > 0 {
		mb = fc.CoverCacheMaxMB
	}
	eff.CoverCacheMaxBytes = int64(mb) << 20

	return eff, nil
}

func validateSiteURL(field, s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, s)
	}
	return nil
}

func envValue(env LookupFunc, key string) string {
	v, ok := env(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
