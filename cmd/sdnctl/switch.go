package main

import (
	"errors"

	"github.com/spf13/cobra"

	"sdnctl/internal/agent"
	"sdnctl/internal/config"
)

func newSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "run a learning switch",
	}

	var id, controllerAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "serve the data plane and flow-rule endpoint of one switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Switch == nil {
				cfg.Switch = &config.SwitchConfig{}
			}
			if id != "" {
				cfg.Switch.ID = id
			}
			if controllerAddr != "" {
				cfg.Switch.Controller = controllerAddr
			}
			if cfg.Switch.ID == "" {
				return errors.New("switch id required (--id or switch.id)")
			}
			config.ApplyDefaults(&cfg)
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return agent.Run(ctx, *cfg.Switch, cfg.Topology)
		},
	}
	serve.Flags().StringVar(&id, "id", "", "switch id from topology")
	serve.Flags().StringVar(&controllerAddr, "controller", "", "controller address")
	cmd.AddCommand(serve)
	return cmd
}
