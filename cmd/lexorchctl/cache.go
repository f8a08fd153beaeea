package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the pattern cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pattern cache performance counters",
	RunE:  func(cmd *cobra.Command, args []string) error { return getAndPrint("/api/v1/cache") },
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every cached pattern-store read",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	httpReq, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/cache", nil)
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

	fmt.Println("cache cleared")
	return nil
}
