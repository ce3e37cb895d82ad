package xercd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	xcommon "github.com/xerc1155/xchain/pkg/common"
	"github.com/xerc1155/xchain/pkg/node"
	"github.com/xerc1155/xchain/pkg/version"
)

var (
	logLevel *string
)

func init() {
	logLevel = NodeCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")

	// Flags named like config keys override the config file.
	NodeCmd.Flags().String("env", string(xcommon.UnsafeDevNet), "Environment (dev, test, prod)")
	NodeCmd.Flags().String("dataDir", "", "Data directory; state is kept in memory when empty (not allowed in prod)")
	NodeCmd.Flags().String("apiAddr", "[::]:7071", "Listen address for the JSON API")
	NodeCmd.Flags().String("statusAddr", "[::]:6060", "Listen address for the status server (/readyz, /metrics); empty disables it")
	NodeCmd.Flags().Bool("systemdSocket", false, "Serve the API on the socket passed by systemd")
	NodeCmd.Flags().Bool("autoRegister", false, "Register every configured chain's counterparts on startup")
}

const devwarning = `
        +++++++++++++++++++++++++++++++++++++++++++++++++++
        |   NODE IS RUNNING IN INSECURE DEVELOPMENT MODE  |
        |                                                 |
        |  Every API caller may act as any address.       |
        +++++++++++++++++++++++++++++++++++++++++++++++++++

`

// NodeCmd represents the node command
var NodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a devnet node hosting one contract per configured chain",
	Run:   runNode,
}

func runNode(cmd *cobra.Command, args []string) {
	xcommon.SetRestrictiveUmask()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, err := node.LoadConfig(cmd.Flags(), node.ConfigOptions{
		FilePath:  viper.ConfigFileUsed(),
		EnvPrefix: "XERCD",
	})
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	env, err := cfg.Validate()
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if env.AllowsImpersonation() {
		fmt.Print(devwarning)
	}
	// Refuse to run as root in production mode.
	if env == xcommon.MainNet && os.Geteuid() == 0 {
		logger.Fatal("can't run as uid 0")
	}

	logger.Info("xerc: starting node", zap.String("version", version.Version()), zap.String("config", viper.ConfigFileUsed()))

	rootCtx, rootCtxCancel := context.WithCancel(context.Background())
	defer rootCtxCancel()
	xcommon.ListenSysExit(logger, rootCtxCancel)

	n, err := node.New(rootCtx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to create node", zap.Error(err))
	}

	err = n.Run(rootCtx, func() { node.NotifySystemdReady(logger) })
	n.Close()
	if err != nil {
		logger.Fatal("node failed", zap.Error(err))
	}
	logger.Info("xerc: node stopped")
}
