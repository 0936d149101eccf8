package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sdnctl/internal/addrutil"
	"sdnctl/internal/api"
	"sdnctl/internal/config"
)

func newFlowCmd() *cobra.Command {
	var controllerAddr string
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "manage flows through the controller API",
	}
	cmd.PersistentFlags().StringVar(&controllerAddr, "controller", "", "controller address (defaults to controller.listen)")

	var req api.DefineFlowRequest
	add := &cobra.Command{
		Use:   "add",
		Short: "install a flow rule between two devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := controllerClient(cfg, controllerAddr)
			if err != nil {
				return err
			}
			if req.Src == "" || req.Dst == "" {
				return errors.New("--src and --dst are required")
			}
			entry, err := client.DefineFlow(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "installed %s -> %s on %s rule=%s score=%.4f\n",
				entry.Src, entry.Dst, entry.Target, entry.RuleID, entry.Score)
			return nil
		},
	}
	add.Flags().StringVar(&req.Src, "src", "", "source device id")
	add.Flags().StringVar(&req.Dst, "dst", "", "destination device id")
	add.Flags().StringVar(&req.DstMAC, "dst-mac", "", "match destination MAC")
	add.Flags().IntVar(&req.Port, "port", 0, "output port action")
	add.Flags().StringSliceVar(&req.Path, "path", nil, "switches on the path, in order")
	add.Flags().StringVar(&req.TrafficType, "traffic", "", "traffic type (lighting, temperature, lock_control)")

	list := &cobra.Command{
		Use:   "list",
		Short: "list active flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := controllerClient(cfg, controllerAddr)
			if err != nil {
				return err
			}
			flows, err := client.Flows(cmd.Context())
			if err != nil {
				return err
			}
			printFlows(flows.Flows)
			return nil
		},
	}

	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "run one energy optimization pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := controllerClient(cfg, controllerAddr)
			if err != nil {
				return err
			}
			resp, err := client.Optimize(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "scanned=%d updated=%d superseded=%d failed=%d\n", resp.Scanned, resp.Updated, resp.Superseded, resp.Failed)
			return nil
		},
	}

	cmd.AddCommand(add, list, optimize)
	return cmd
}

func controllerClient(cfg config.Config, override string) (*api.Client, error) {
	addr := override
	if addr == "" && cfg.Controller != nil {
		addr = cfg.Controller.Listen
	}
	if addr == "" {
		addr = config.DefaultControllerListen
	}
	ctrl, err := addrutil.ParseController(addr)
	if err != nil {
		return nil, err
	}
	return api.NewClient(ctrl.API), nil
}

func printFlows(flows []api.FlowEntry) {
	if len(flows) == 0 {
		fmt.Fprintln(os.Stdout, "no active flows")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SRC\tDST\tTARGET\tPATH\tTRAFFIC\tSCORE\tVERSION\tUPDATED")
	for _, f := range flows {
		updated := ""
		if !f.UpdatedAt.IsZero() {
			updated = f.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%d\t%s\n",
			f.Src, f.Dst, f.Target, strings.Join(f.Path, ","), f.TrafficType, f.Score, f.Version, updated)
	}
	_ = tw.Flush()
}
