// Package config loads and validates the workspace configuration file
// (.tabdiff/config.json): format version and the operation defaults that
// the builder and detector fall back to when a CLI flag is not given.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReservedConfigName 是 Snapshot Store 绝不会当作快照名处理的保留文件名。
const ReservedConfigName = "config.json"

// CurrentFormatVersion 是本构建写出的配置格式版本号。
const CurrentFormatVersion = 1

// Config 是工作区配置文件 .tabdiff/config.json 的内容。
type Config struct {
	FormatVersion int  `json:"format_version"`
	BatchSize     int  `json:"batch_size"`
	SampleSize    int  `json:"sample_size"`
	FullData      bool `json:"full_data_default"`
	KeepFull      int  `json:"keep_full_default"`
	Workers       int  `json:"workers"`
}

// Default 返回 init 在没有现有配置时写出的默认配置。
func Default() *Config {
	return &Config{
		FormatVersion: CurrentFormatVersion,
		BatchSize:     10000,
		SampleSize:    1000,
		FullData:      false,
		KeepFull:      5,
		Workers:       0, // 0 表示调用方退回 runtime.NumCPU()
	}
}

// Load 读取并校验 path 处的配置文件。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault 加载 path 处的配置；文件不存在时返回内置默认值（不写盘）。
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Write 原子写入 cfg 到 path（先写临时文件，再 rename），与 store 对
// sidecar/archive 的写入契约保持一致。
func Write(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.FormatVersion <= 0 {
		return fmt.Errorf("config: format_version must be positive, got %d", c.FormatVersion)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("config: sample_size must be positive, got %d", c.SampleSize)
	}
	if c.KeepFull < 0 {
		return fmt.Errorf("config: keep_full_default must not be negative, got %d", c.KeepFull)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// WorkspaceDir 是每个工作区根目录下持有配置、sidecar、归档和缓存 diff 的
// 固定子目录名。
const WorkspaceDir = ".tabdiff"

// DiffsDir 是 WorkspaceDir 下缓存 diff 输出的子目录。
const DiffsDir = "diffs"

// ConfigPath 返回给定工作区根目录对应的配置文件路径。
func ConfigPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, WorkspaceDir, ReservedConfigName)
}

// Discover 从 start 向上逐级查找 .tabdiff 目录。`.git` 目录只是一个提示，
// 本身从不被当作工作区根。如果一路找到文件系统根都没有 .tabdiff，
// Discover 报告应当在 start 本身新建一个工作区。
func Discover(start string) (root string, found bool, err error) {
	resolvedStart, err := filepath.Abs(start)
	if err != nil {
		return "", false, fmt.Errorf("config: resolve %s: %w", start, err)
	}

	dir := resolvedStart
	for {
		candidate := filepath.Join(dir, WorkspaceDir)
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			return dir, true, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return resolvedStart, false, nil
}

// EnsureWorkspace 创建 <root>/.tabdiff（及其 diffs/ 子目录），并在尚无
// config.json 时写入默认配置。
func EnsureWorkspace(root string) error {
	dir := filepath.Join(root, WorkspaceDir)
	if err := os.MkdirAll(filepath.Join(dir, DiffsDir), 0o755); err != nil {
		return fmt.Errorf("config: create workspace directory: %w", err)
	}

	path := ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Write(path, Default())
	}
	return nil
}
