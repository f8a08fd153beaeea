package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the pattern store from disk",
	Long: `Re-read the pattern store's configured directory and clear the
pattern cache, so subsequent reads observe the new patterns immediately.`,
	RunE: runReload,
}

func runReload(cmd *cobra.Command, args []string) error {
	httpReq, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/patterns/reload", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}

	fmt.Println("patterns reloaded")
	return nil
}
