package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/opencrash/crashmgr/internal/logger"
	"github.com/opencrash/crashmgr/pkg/config"
	"github.com/opencrash/crashmgr/pkg/manager"
	"github.com/opencrash/crashmgr/pkg/transfer"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the crash manager daemon in the foreground",
	Long: `Start runs the crash manager daemon: it binds the handler and epilog
IPC sockets, opens the crash journal and serves until interrupted.

Examples:
  # Start with the default config path
  cdm start

  # Start with a custom config file
  cdm start --config /etc/crashmgr/crashmgr.conf`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	shipper, err := buildShipper(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("configuring archive transfer: %w", err)
	}

	m, err := manager.New(cfg, shipper)
	if err != nil {
		return fmt.Errorf("initializing manager: %w", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Metrics().Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("cdm: metrics server error", logger.Err(err))
			}
		}()
		logger.Info("cdm: metrics listening", "addr", cfg.Metrics.Addr)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("cdm: crash manager running", logger.Path(cfg.Common.SocketPath()))

	select {
	case <-sigCtx.Done():
		logger.Info("cdm: shutdown signal received")
		cancel()
		err = <-runDone
	case err = <-runDone:
	}

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	if err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	logger.Info("cdm: stopped")
	return nil
}

// buildShipper constructs the archive shipper from the [transfer]
// section. An empty bucket means no object-storage destination is
// configured, in which case archives accumulate under the crashdump
// directory until the janitor reclaims them.
func buildShipper(ctx context.Context, cfg *config.Config) (manager.Shipper, error) {
	if cfg.Transfer.Bucket == "" {
		logger.Info("cdm: no transfer bucket configured, archives will not leave the crashdump directory")
		return noopShipper{}, nil
	}

	client, err := transfer.NewS3ClientFromConfig(ctx, transfer.S3Config{
		Endpoint:        cfg.Transfer.Endpoint,
		Region:          cfg.Transfer.Region,
		AccessKeyID:     cfg.Transfer.AccessKeyID,
		SecretAccessKey: cfg.Transfer.SecretAccessKey,
		ForcePathStyle:  cfg.Transfer.ForcePathStyle,
		Bucket:          cfg.Transfer.Bucket,
		KeyPrefix:       cfg.Transfer.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	return transfer.NewS3Shipper(client, cfg.Transfer.Bucket, cfg.Transfer.KeyPrefix), nil
}

// noopShipper satisfies manager.Shipper when no transfer destination is
// configured.
type noopShipper struct{}

func (noopShipper) Ship(ctx context.Context, path string) error { return nil }
