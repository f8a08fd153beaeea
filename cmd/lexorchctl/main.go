// Package main implements the lexorchctl CLI for manual operations against
// a running lexorchd HTTP server.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the lexorchd HTTP server.
	serverURL string
	version   = "dev"

	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lexorchctl",
	Short: "CLI for lexorchd operations",
	Long: `lexorchctl is a command-line interface for interacting with a running
lexorchd server: routing and extracting documents, and inspecting or
reloading the pattern store.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "lexorchd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(cacheCmd)
}
