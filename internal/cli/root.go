// Package cli wires the egoscan commands.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/egoscan/egoscan/internal/config"
	"github.com/egoscan/egoscan/internal/logging"
)

// SetupRootCmd builds the root command with all subcommands and flags.
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "egoscan",
		Short: "egoscan - company reputation scanner",
		Long: `egoscan drives a Chrome instance against the 2GIS listing site to find
company cards and build a reputation report.

Use 'egoscan run' for a one-shot scan or 'egoscan serve' for the intake API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "path to YAML configuration file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	pf.StringVar(&chromePath, "chrome-path", "", "path to the Chrome executable")
	pf.IntVar(&remotePort, "port", 0, "Chrome remote-debugging port")
	pf.BoolVar(&headless, "headless", false, "run Chrome headless")
	pf.BoolVar(&disableImages, "disable-images", false, "disable image loading")
	pf.BoolVar(&startMaximized, "start-maximized", false, "start Chrome maximized")
	pf.IntVar(&memoryLimitMB, "memory-limit", 0, "JS heap ceiling in MB")
	pf.StringVar(&proxyServer, "proxy", "", "proxy server for Chrome")
	pf.StringVar(&userDataDir, "user-data-dir", "", "Chrome profile directory")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// loadConfig reads the configuration file and layers the browser flags the
// user set on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("chrome-path") {
		cfg.Chrome.BinaryPath = chromePath
	}
	if flags.Changed("port") {
		cfg.Chrome.RemotePort = remotePort
	}
	if flags.Changed("headless") {
		cfg.Chrome.Headless = headless
	}
	if flags.Changed("disable-images") {
		cfg.Chrome.DisableImages = disableImages
	}
	if flags.Changed("start-maximized") {
		cfg.Chrome.StartMaximized = startMaximized
	}
	if flags.Changed("memory-limit") {
		cfg.Chrome.MemoryLimitMB = memoryLimitMB
	}
	if flags.Changed("proxy") {
		cfg.Chrome.ProxyServer = proxyServer
	}
	if flags.Changed("user-data-dir") {
		cfg.Chrome.UserDataDir = userDataDir
	}
	if verbose {
		cfg.Verbose = true
	}

	log := logging.Setup(cfg.Verbose)
	return cfg, log, nil
}
