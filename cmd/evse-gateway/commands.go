package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/evse-gateway/internal/app"
	"github.com/taoyao-code/evse-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/evse-gateway/internal/config"
	"github.com/taoyao-code/evse-gateway/internal/logging"
	"github.com/taoyao-code/evse-gateway/internal/transport"
)

// transportFactory 测试时替换为假链路
type transportFactory func(cfg cfgpkg.BLEConfig, log *zap.Logger) transport.Transport

func newBLETransport(cfg cfgpkg.BLEConfig, log *zap.Logger) transport.Transport {
	return app.NewBLETransport(cfg, log)
}

func newRootCmd(newTransport transportFactory) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "evse-gateway",
		Short: "EVSE BLE to MQTT gateway",
		Long: `Connects to an EV charger over Bluetooth LE, performs the login handshake,
and mirrors its state to MQTT (and optionally Redis and PostgreSQL).

Configuration is read from a YAML file (--config or EVSE_CONFIG), EVSE_*
environment variables and the flags below, in increasing precedence.`,
		Version:       bootstrap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	pf.String("address", "", "Charger BLE address (overrides ble.address)")
	pf.String("password", "", "Six character BLE password (overrides ble.password)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(&configPath, newTransport),
		newScanCmd(&configPath, newTransport),
		newVersionCmd(),
	)
	return root
}

// setup 加载配置并初始化全局日志
func setup(cmd *cobra.Command, configPath string) (*cfgpkg.Config, *zap.Logger, error) {
	cfg, err := cfgpkg.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func newRunCmd(configPath *string, newTransport transportFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the gateway for the configured charger",
		Example: `  # Connect to a charger with the default password
  evse-gateway run --address AA:BB:CC:DD:EE:FF

  # Use a config file and verbose logging
  evse-gateway run -c configs/example.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := cfg.RequireAddress(); err != nil {
				return err
			}
			return bootstrap.Run(cmd.Context(), cfg, newTransport(cfg.BLE, logger), logger)
		},
	}
}

func newScanCmd(configPath *string, newTransport transportFactory) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby chargers",
		Long:  `Scans for BLE peripherals whose advertised name contains "ACP#" for ble.scanTimeout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			peers, err := newTransport(cfg.BLE, logger).Scan(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(peers, func(i, j int) bool { return peers[i].RSSI > peers[j].RSSI })
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(peers)
			}
			return printPeers(cmd.OutOrStdout(), peers)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func printPeers(w io.Writer, peers []transport.Peer) error {
	if len(peers) == 0 {
		_, err := fmt.Fprintln(w, "no chargers found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tRSSI")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Address, p.Name, p.RSSI)
	}
	return tw.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "evse-gateway %s\n", bootstrap.Version)
		},
	}
}
