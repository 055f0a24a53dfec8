// Command lineage serves and queries signal detection lineage across the
// review stages of a monitoring pipeline.
package main

import (
	"encoding/json"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/lineage-bridge/internal/config"
)

// #region root
var (
	configPath string
	remoteAddr string

	rootCmd = &cobra.Command{
		Use:   "lineage",
		Short: "Resolve detection and hypothesis lineage across review stages",
		Long: `lineage reads per-stage arrival, association and amplitude tables and
presents every pick as a detection with a chain of hypotheses.`,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("lineage: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("LINEAGE_CONFIG", "lineage.yaml"), "path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "addr", "", "lineage service address for queries (defaults to grpc.addr)")
	rootCmd.AddCommand(serveCmd, seedCmd, detectionsCmd, hypothesesCmd, filtersCmd, chainCmd)
}

// #endregion root

// #region helpers
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
