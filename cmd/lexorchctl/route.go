package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	routeStrategyOverride string
	routeExtractRels      bool
	routeGraphRAG         bool
)

// routeRequest matches internal/http/server.go RouteRequest.
type routeRequest struct {
	DocumentID           string `json:"document_id,omitempty"`
	Text                 string `json:"text"`
	StrategyOverride     string `json:"strategy_override,omitempty"`
	ExtractRelationships bool   `json:"extract_relationships,omitempty"`
	GraphRAGMode         bool   `json:"graph_rag_mode,omitempty"`
}

var routeCmd = &cobra.Command{
	Use:   "route [file]",
	Short: "Classify a document without running extraction",
	Long: `Route a document to a processing strategy, without running any
extraction wave. Reads the document from a file, or stdin if omitted or "-".

Examples:
  lexorchctl route complaint.txt
  cat brief.txt | lexorchctl route -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeStrategyOverride, "strategy", "", "force a processing strategy")
	routeCmd.Flags().BoolVar(&routeExtractRels, "relationships", false, "request the relationship wave")
	routeCmd.Flags().BoolVar(&routeGraphRAG, "graph-rag", false, "enable GraphRAG mode")
}

func runRoute(cmd *cobra.Command, args []string) error {
	text, err := readDocument(args)
	if err != nil {
		return err
	}

	reqBody, err := json.Marshal(routeRequest{
		Text:                 text,
		StrategyOverride:     routeStrategyOverride,
		ExtractRelationships: routeExtractRels,
		GraphRAGMode:         routeGraphRAG,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return postAndPrint("/api/v1/route", reqBody)
}

// readDocument reads document text from args[0], or stdin when args is
// empty or "-".
func readDocument(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return string(content), nil
}

// postAndPrint posts body to path on the configured server and pretty-prints
// the JSON response to stdout.
func postAndPrint(path string, body []byte) error {
	httpReq, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", serverURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}

	return printPrettyJSON(resp.Body)
}

func printPrettyJSON(r io.Reader) error {
	var v any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
