package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sdnctl/internal/config"
	"sdnctl/internal/controller"
	"sdnctl/internal/metrics"
)

func newControllerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "run or inspect the flow controller",
	}
	cmd.AddCommand(newControllerServeCmd(), newControllerStatusCmd())
	return cmd
}

func newControllerServeCmd() *cobra.Command {
	var listen, telemetryListen, dataDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the controller API and update listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Controller == nil {
				cfg.Controller = &config.ControllerConfig{}
			}
			if listen != "" {
				cfg.Controller.Listen = listen
			}
			if telemetryListen != "" {
				cfg.Controller.TelemetryListen = telemetryListen
			}
			if dataDir != "" {
				cfg.Controller.DataDir = dataDir
			}
			config.ApplyDefaults(&cfg)
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return controller.Run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address")
	cmd.Flags().StringVar(&telemetryListen, "telemetry-listen", "", "UDP listen address for switch reports")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for the flow registry")
	return cmd
}

func newControllerStatusCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "print active flows and recent switch loads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Controller == nil {
				return errors.New("controller config required")
			}
			config.ApplyDefaults(&cfg)

			client, err := controllerClient(cfg, "")
			if err != nil {
				return err
			}
			flows, err := client.Flows(cmd.Context())
			if err != nil {
				return err
			}
			printFlows(flows.Flows)

			if cfg.Controller.TelemetryPath == "" {
				return nil
			}
			items, err := metrics.ReadCSV(cfg.Controller.TelemetryPath)
			if err != nil {
				return err
			}
			summaries := metrics.Summarize(items, time.Now().UTC().Add(-window))
			if len(summaries) == 0 {
				fmt.Fprintln(os.Stdout, "no load samples in window")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SWITCH\tSAMPLES\tAVG\tP95\tMAX\tPACKETS")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\t%d\n", s.SwitchID, s.Count, s.AvgLoad, s.P95Load, s.MaxLoad, s.Packets)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVar(&window, "window", 5*time.Minute, "load summary window")
	return cmd
}
