// Package orchestrator implements the Extraction Orchestrator (C7): given
// a document's text, its RoutingDecision, and its SizeInfo, it builds the
// strategy's fixed wave plan, drives each wave through the throttled LLM
// client, canonicalises and deduplicates the resulting entities, and
// assembles the final ExtractionResult.
//
// A wave failure (retries exhausted) does not abort the plan — later
// waves still run, and the failure is recorded in per-wave statistics.
package orchestrator
