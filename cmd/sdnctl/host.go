package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sdnctl/internal/api"
	"sdnctl/internal/config"
	"sdnctl/internal/host"
	"sdnctl/internal/model"
)

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "run an end device",
	}

	var controllerIP, srcHost, traffic string
	run := &cobra.Command{
		Use:   "run",
		Short: "attach a host to its switch and send messages interactively",
		Long: `Reads commands from stdin:
  send <dst-host> <message>   install a flow via the controller, then send
  received                    print received messages
  exit                        stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			node, err := srcHostNode(cfg.Topology, srcHost)
			if err != nil {
				return err
			}
			uplink, ok := cfg.Topology.Switch(node.Switch)
			if !ok || uplink.DataAddr == "" {
				return fmt.Errorf("host %s: switch %q has no data_addr", node.Name, node.Switch)
			}
			mac, err := model.ParseMAC(node.MAC)
			if err != nil {
				return err
			}

			client, err := controllerClient(cfg, controllerIP)
			if err != nil {
				return err
			}

			h, err := host.Listen(node.Name, mac, node.Addr, uplink.DataAddr)
			if err != nil {
				return err
			}
			defer h.Close()
			log.WithFields(log.Fields{"host": h.Name(), "mac": h.MAC().String(), "addr": h.LocalAddr()}).Info("host attached")

			ctx, cancel := signalContext()
			defer cancel()
			return interact(ctx, os.Stdin, os.Stdout, h, cfg.Topology, client, traffic)
		},
	}
	run.Flags().StringVar(&controllerIP, "controller-ip", "", "controller address (host or host:port)")
	run.Flags().StringVar(&srcHost, "src-host", "", "host name from topology.hosts (e.g. h1)")
	run.Flags().StringVar(&traffic, "traffic", "", "traffic type for flows this host requests")
	_ = run.MarkFlagRequired("controller-ip")
	_ = run.MarkFlagRequired("src-host")

	cmd.AddCommand(run)
	return cmd
}

// srcHostNode resolves --src-host against the configured host names, which
// form the closed set of valid sources.
func srcHostNode(topo config.Topology, name string) (config.HostNode, error) {
	names := topo.HostNames()
	if len(names) == 0 {
		return config.HostNode{}, fmt.Errorf("no hosts configured; pass --config with a topology")
	}
	node, ok := topo.Host(name)
	if !ok {
		return config.HostNode{}, fmt.Errorf("unknown host %q (one of: %s)", name, strings.Join(names, ", "))
	}
	return node, nil
}

func interact(ctx context.Context, in io.Reader, out io.Writer, h *host.Host, topo config.Topology, client *api.Client, traffic string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		verb, rest, _ := strings.Cut(line, " ")
		switch verb {
		case "":
		case "exit", "quit":
			return nil
		case "received":
			for i, m := range h.Received() {
				fmt.Fprintf(out, "%d: %s -> %s %q\n", i+1, m.Src, m.Dst, m.Data)
			}
		case "send":
			dst, msg, _ := strings.Cut(strings.TrimSpace(rest), " ")
			if err := send(ctx, h, topo, client, traffic, dst, msg); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		default:
			fmt.Fprintf(out, "unknown command %q (send, received, exit)\n", verb)
		}
	}
}

func send(ctx context.Context, h *host.Host, topo config.Topology, client *api.Client, traffic, dst, msg string) error {
	node, ok := topo.Host(dst)
	if !ok {
		return fmt.Errorf("unknown host %q", dst)
	}
	mac, err := model.ParseMAC(node.MAC)
	if err != nil {
		return err
	}

	if client != nil {
		_, err := client.DefineFlow(ctx, api.DefineFlowRequest{
			Src:         h.Name(),
			Dst:         node.Name,
			DstMAC:      mac.String(),
			TrafficType: traffic,
		})
		if err != nil {
			log.WithError(err).Warn("flow setup failed, sending anyway")
		}
	}
	return h.Send(ctx, mac, []byte(msg))
}
