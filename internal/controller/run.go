package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sdnctl/internal/config"
	"sdnctl/internal/store"
	"sdnctl/internal/telemetry"
)

// RegistryFile is the registry snapshot name inside data_dir.
const RegistryFile = "flows.yaml"

// Run starts the controller HTTP API, the update listener and, when
// configured, the periodic optimizer. It returns when ctx is done or the
// HTTP server fails. A listener fault is logged and leaves the API serving.
func Run(ctx context.Context, cfg config.Config) error {
	if cfg.Controller == nil {
		return fmt.Errorf("controller config is required")
	}
	c := *cfg.Controller

	devices, err := cfg.Topology.Devices()
	if err != nil {
		return err
	}

	var opts []ManagerOption
	reg := store.NewRegistry()
	if c.DataDir != "" {
		regPath := filepath.Join(c.DataDir, RegistryFile)
		reg, err = store.LoadRegistry(regPath)
		if err != nil {
			return err
		}
		opts = append(opts, WithRegistryPath(regPath))
	}

	loads := telemetry.NewLoadTable(time.Duration(c.LoadTTLSec) * time.Second)
	mgr := NewManager(reg, loads, devices, TopologyEndpoints(cfg.Topology, c.FlowAPI), opts...)

	var lopts []telemetry.ListenerOption
	if c.TelemetryPath != "" {
		lopts = append(lopts, telemetry.WithSampleLog(c.TelemetryPath))
	}
	listener, err := telemetry.Listen(c.TelemetryListen, loads, lopts...)
	if err != nil {
		log.WithError(err).Error("update listener unavailable, loads will not be refreshed")
	}

	server := &http.Server{
		Addr:              c.Listen,
		Handler:           NewServer(mgr, loads).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("controller listening on %s", c.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if listener != nil {
		g.Go(func() error {
			if err := listener.Run(gctx); err != nil {
				log.WithError(err).Error("update listener stopped")
			}
			return nil
		})
	}
	if c.OptimizeIntervalSec > 0 {
		g.Go(func() error {
			mgr.RunOptimizer(gctx, time.Duration(c.OptimizeIntervalSec)*time.Second)
			return nil
		})
	}
	return g.Wait()
}
