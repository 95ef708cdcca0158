package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/char5742/wheel-filter/internal/scroll"
)

// アプリケーション名（設定ディレクトリ名）
const appName = "wheel-filter"

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Filter      FilterConfig      `toml:"filter" json:"filter"`
	DevicePrefs DevicePrefsConfig `toml:"device_prefs" json:"device_prefs"`
	Log         LogConfig         `toml:"log" json:"log"`
	API         APIConfig         `toml:"api" json:"api"`
}

// FilterConfig はスクロールフィルターの設定
type FilterConfig struct {
	MinDeltaSize         float32 `toml:"min_delta_size" json:"min_delta_size"`
	MinSmoothedDeltaSize float32 `toml:"min_smoothed_delta_size" json:"min_smoothed_delta_size"`
	TimeConstantMS       float32 `toml:"time_constant_ms" json:"time_constant_ms"`
	Accumulate           bool    `toml:"accumulate" json:"accumulate"`
}

// DevicePrefsConfig はデバイス設定
type DevicePrefsConfig struct {
	PreferredMouseDevice string `toml:"preferred_mouse_device" json:"preferred_mouse_device"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	LogToFile bool   `toml:"log_to_file" json:"log_to_file"`
	File      string `toml:"file" json:"file"` // 空なら設定ディレクトリのwheel-filter.log
}

// APIConfig はAPIサーバーの設定
type APIConfig struct {
	Port int `toml:"port" json:"port"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	f := scroll.DefaultConfig()
	return &Config{
		Filter: FilterConfig{
			MinDeltaSize:         f.MinDeltaSize,
			MinSmoothedDeltaSize: f.MinSmoothedDeltaSize,
			TimeConstantMS:       f.TimeConstantMS,
			Accumulate:           f.Accumulate,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

// ScrollConfig はフィルター用の設定に変換する
func (c *Config) ScrollConfig() scroll.Config {
	return scroll.Config{
		MinDeltaSize:         c.Filter.MinDeltaSize,
		MinSmoothedDeltaSize: c.Filter.MinSmoothedDeltaSize,
		TimeConstantMS:       c.Filter.TimeConstantMS,
		Accumulate:           c.Filter.Accumulate,
	}
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	if err := c.ScrollConfig().Validate(); err != nil {
		return err
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}
	return nil
}

// LogFile はログファイルのパスを返す
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return appName + ".log"
	}
	return filepath.Join(dir, appName+".log")
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// GetDefaultConfigPath はデフォルトの設定ファイルパスを返す
func GetDefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
// ファイルが存在しない場合はデフォルト設定を保存して返す
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	if err := decodeFile(configPath, config); err != nil {
		return config, err
	}
	return config, nil
}

// decodeFile は既存の設定にファイルの内容を上書きする
func decodeFile(configPath string, config *Config) error {
	md, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("不明な設定項目があります: %v", undecoded)
	}
	return nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return err
	}
	return f.Sync()
}
