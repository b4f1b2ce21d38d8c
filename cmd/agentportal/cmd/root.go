package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jmcleod/agentportal/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile        string
	dataDir        string
	storageBackend string
	logLevel       string
	logFormat      string
)

var rootCmd = &cobra.Command{
	Use:   "agentportal",
	Short: "agentportal signs insurance agents in to the CRM",
	Long: `agentportal keeps an agent's CRM session on this device: it logs in with
the OAuth password grant, stores the token in an encrypted local store and
offers quick biometric re-login.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Version = Version
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&dataDir, "data-dir", "", "Directory for the device stores (overrides config)")
	pf.StringVar(&storageBackend, "storage", "", "Storage backend: bbolt or memory (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
}

// flagOverrides applies the persistent flags that were set.
func flagOverrides(c *config.Config) {
	if dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if storageBackend != "" {
		c.Storage.Backend = storageBackend
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
}
