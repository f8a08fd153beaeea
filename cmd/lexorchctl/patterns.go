package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var patternsMinConfidence float64

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect the loaded pattern store",
	Long:  `Subcommands for inspecting entity types, patterns, and relationship patterns loaded by lexorchd.`,
}

var patternsEntityTypesCmd = &cobra.Command{
	Use:   "entity-types",
	Short: "List every entity type the pattern store indexes",
	RunE:  func(cmd *cobra.Command, args []string) error { return getAndPrint("/api/v1/entity-types") },
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(fmt.Sprintf("/api/v1/patterns?min_confidence=%g", patternsMinConfidence))
	},
}

var patternsRelationshipsCmd = &cobra.Command{
	Use:   "relationships",
	Short: "List loaded relationship patterns, grouped by category",
	RunE:  func(cmd *cobra.Command, args []string) error { return getAndPrint("/api/v1/relationships") },
}

func init() {
	patternsListCmd.Flags().Float64Var(&patternsMinConfidence, "min-confidence", 0, "drop patterns below this confidence (0-1)")
	patternsCmd.AddCommand(patternsEntityTypesCmd, patternsListCmd, patternsRelationshipsCmd)
}

// getAndPrint issues a GET request against the configured server and
// pretty-prints the JSON response.
func getAndPrint(path string) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	return printPrettyJSON(resp.Body)
}
