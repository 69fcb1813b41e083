// Command devicegen replaces the device store with fresh android, ios and
// web profiles for every user of the configured upstream account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/device"
	"github.com/bluebricks/rba-harness/internal/service"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

func main() {
	configPath := flag.String("config", "config/app-config.yaml", "path to the YAML config")
	out := flag.String("out", "", "device store path (defaults to device_store.path)")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.ReplaceGlobal(&logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Encoding, Output: "stderr"})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := config.ResolveAWS(ctx, cfg); err != nil {
		logger.Fatalf("AWS config resolution failed: %v", err)
	}
	if cfg.Upstream.BaseURL == "" {
		logger.Fatalf("upstream.base_url is required")
	}
	path := cfg.DeviceStore.Path
	if *out != "" {
		path = *out
	}

	gen := device.NewGenerator(random.New(), time.Now)
	devices := service.NewDeviceService(device.NewStore(path, gen), gen, nil, client.NewRiskAPIClient(cfg.Upstream, nil), cfg.Upstream.JWTUserID)

	n, err := devices.SeedFromUpstream(ctx)
	if err != nil {
		logger.Fatalf("device generation failed: %v", err)
	}
	fmt.Printf("wrote profiles for %d users to %s\n", n, path)
}
