package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/system-design/14-room-server/internal/message"
	"github.com/koopa0/system-design/14-room-server/internal/transport"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		TCPAddr       string `yaml:"tcp_addr"`
		WebSocketAddr string `yaml:"ws_addr"`
		CertFile      string `yaml:"cert_file"`
		KeyFile       string `yaml:"key_file"`
		StatusLog     string `yaml:"status_log"`
	} `yaml:"server"`

	Transport struct {
		MaxFrameSize  int           `yaml:"max_frame_size"`
		SendQueueSize int           `yaml:"send_queue_size"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
	} `yaml:"transport"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() Config {
	var c Config
	c.Server.TCPAddr = ":8009"
	c.Server.WebSocketAddr = ":8010"

	opts := transport.DefaultOptions()
	c.Transport.MaxFrameSize = opts.MaxFrameSize
	c.Transport.SendQueueSize = opts.SendQueueSize
	c.Transport.WriteTimeout = opts.WriteTimeout

	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// LoadConfig 以預設配置為底讀取 YAML，未知欄位視為錯誤
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("讀取配置檔 %s 失敗: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("解析配置檔 %s 失敗: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 檢查配置
func (c Config) Validate() error {
	if c.Server.TCPAddr == "" && c.Server.WebSocketAddr == "" {
		return errors.New("至少需要啟用 TCP 或 WebSocket 其中之一")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("cert_file 與 key_file 必須同時設定")
	}
	if c.Transport.MaxFrameSize < message.IDSize {
		return fmt.Errorf("max_frame_size 至少為 %d", message.IDSize)
	}
	if c.Transport.SendQueueSize <= 0 {
		return errors.New("send_queue_size 必須大於 0")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("不支援的日誌級別: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("不支援的日誌格式: %s", c.Log.Format)
	}
	return nil
}

// TLS 是否以 TLS 提供服務
func (c Config) TLS() bool {
	return c.Server.CertFile != ""
}

// TransportOptions 轉成傳輸層參數
func (c Config) TransportOptions() transport.Options {
	return transport.Options{
		MaxFrameSize:  c.Transport.MaxFrameSize,
		SendQueueSize: c.Transport.SendQueueSize,
		WriteTimeout:  c.Transport.WriteTimeout,
	}
}
