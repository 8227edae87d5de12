package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/koopa0/system-design/14-room-server/internal"
	"github.com/koopa0/system-design/14-room-server/internal/transport"
)

const shutdownTimeout = 30 * time.Second

type serveFlags struct {
	configPath    string
	tcpAddr       string
	wsAddr        string
	certFile      string
	keyFile       string
	statusLog     string
	maxFrameSize  int
	sendQueueSize int
	logLevel      string
	logFormat     string
}

func serveCmd() *cobra.Command {
	var f serveFlags
	defaults := internal.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "啟動房間服務器",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "YAML 配置檔路徑")
	flags.StringVar(&f.tcpAddr, "tcp-addr", defaults.Server.TCPAddr, "TCP 監聽地址（空字串停用）")
	flags.StringVar(&f.wsAddr, "ws-addr", defaults.Server.WebSocketAddr, "WebSocket / HTTP 監聽地址（空字串停用）")
	flags.StringVar(&f.certFile, "cert", "", "TLS 憑證檔")
	flags.StringVar(&f.keyFile, "key", "", "TLS 私鑰檔")
	flags.StringVar(&f.statusLog, "status-log", "", "狀態日誌檔（JSON Lines）")
	flags.IntVar(&f.maxFrameSize, "max-frame-size", defaults.Transport.MaxFrameSize, "單一封包最大位元組數")
	flags.IntVar(&f.sendQueueSize, "send-queue", defaults.Transport.SendQueueSize, "每個連接的發送佇列長度")
	flags.StringVar(&f.logLevel, "log-level", defaults.Log.Level, "日誌級別 (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", defaults.Log.Format, "日誌格式 (text, json)")

	return cmd
}

// resolveConfig 配置檔為底，命令列明確指定的參數覆蓋
func resolveConfig(cmd *cobra.Command, f serveFlags) (internal.Config, error) {
	cfg := internal.DefaultConfig()
	if f.configPath != "" {
		loaded, err := internal.LoadConfig(f.configPath)
		if err != nil {
			return internal.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("tcp-addr") {
		cfg.Server.TCPAddr = f.tcpAddr
	}
	if changed("ws-addr") {
		cfg.Server.WebSocketAddr = f.wsAddr
	}
	if changed("cert") {
		cfg.Server.CertFile = f.certFile
	}
	if changed("key") {
		cfg.Server.KeyFile = f.keyFile
	}
	if changed("status-log") {
		cfg.Server.StatusLog = f.statusLog
	}
	if changed("max-frame-size") {
		cfg.Transport.MaxFrameSize = f.maxFrameSize
	}
	if changed("send-queue") {
		cfg.Transport.SendQueueSize = f.sendQueueSize
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return internal.Config{}, fmt.Errorf("配置無效: %w", err)
	}
	return cfg, nil
}

func runServer(cfg internal.Config) error {
	app := newApp(cfg)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("啟動失敗: %w", err)
	}

	sig := <-app.Done()
	slog.Info("收到關閉信號，開始優雅關閉...", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("關閉失敗: %w", err)
	}
	return nil
}

func newApp(cfg internal.Config) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newRegistry,
			newMetrics,
			newStatusLog,
			newServer,
			newHub,
		),
		fx.Invoke(
			registerHub,
			registerTCP,
			registerHTTP,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
	)
}

func newLogger(cfg internal.Config) *slog.Logger {
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return logger
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *internal.Metrics {
	return internal.NewMetrics(reg)
}

// newStatusLog 未設定路徑時回傳 nil
func newStatusLog(cfg internal.Config) (*internal.StatusLog, error) {
	if cfg.Server.StatusLog == "" {
		return nil, nil
	}
	return internal.OpenStatusLog(cfg.Server.StatusLog, clock.New())
}

func newServer(logger *slog.Logger, metrics *internal.Metrics, statusLog *internal.StatusLog) *internal.Server {
	opts := []internal.Option{internal.WithMetrics(metrics)}
	if statusLog != nil {
		opts = append(opts, internal.WithStatusLog(statusLog))
	}
	return internal.NewServer(logger, opts...)
}

func newHub(server *internal.Server, logger *slog.Logger) *internal.Hub {
	return internal.NewHub(server, logger)
}

// registerHub 事件迴圈最先啟動、最後停止
func registerHub(lc fx.Lifecycle, hub *internal.Hub, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { errc <- hub.Run(ctx) }()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case err := <-errc:
				if err != nil {
					logger.Error("事件迴圈結束時發生錯誤", "error", err)
				}
				return err
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func registerTCP(lc fx.Lifecycle, cfg internal.Config, hub *internal.Hub, logger *slog.Logger) {
	if cfg.Server.TCPAddr == "" {
		return
	}
	srv := transport.NewTCPServer(hub, logger.With("transport", "tcp"), cfg.TransportOptions())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := srv.Listen(cfg.Server.TCPAddr)
			if err != nil {
				return fmt.Errorf("TCP 監聽 %s 失敗: %w", cfg.Server.TCPAddr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil {
					logger.Error("TCP 服務器異常結束", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			return srv.Close()
		},
	})
}

func registerHTTP(lc fx.Lifecycle, cfg internal.Config, hub *internal.Hub, reg *prometheus.Registry, logger *slog.Logger) {
	if cfg.Server.WebSocketAddr == "" {
		return
	}
	ws := transport.NewWebSocketServer(hub, logger.With("transport", "websocket"), cfg.TransportOptions())
	handler := internal.NewHandler(hub, ws, reg, logger)

	srv := &http.Server{
		Addr:              cfg.Server.WebSocketAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("HTTP 監聽 %s 失敗: %w", srv.Addr, err)
			}
			logger.Info("房間服務器啟動",
				"ws_addr", ln.Addr().String(),
				"tcp_addr", cfg.Server.TCPAddr,
				"tls", cfg.TLS(),
				"version", internal.Version)

			go func() {
				var err error
				if cfg.TLS() {
					err = srv.ServeTLS(ln, cfg.Server.CertFile, cfg.Server.KeyFile)
				} else {
					err = srv.Serve(ln)
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP 服務器異常結束", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Shutdown 不追蹤已 Hijack 的 WebSocket 連接，需另外關閉
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("HTTP 服務器關閉失敗", "error", err)
			}
			return ws.Close()
		},
	})
}
