// Package consolidatecmder provides commands for detecting and merging
// duplicate memories through the running API server.
package consolidatecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/consolidate"
)

const consolidateLongDesc string = `Detect and merge duplicate memories.

A consolidation moves through detect, validate, preview, and commit.
Detection and preview never change stored data; commit merges the member
records into the primary atomically.

Use subcommands for each stage:
  mnemo consolidate detect <content>                Find duplicates of content
  mnemo consolidate validate <primary> <member>...  Check a merge plan
  mnemo consolidate preview <primary> <member>...   Show the merged record
  mnemo consolidate commit <primary> <member>...    Apply the merge
  mnemo consolidate history                         Show past outcomes

Examples:
  mnemo consolidate detect "Reminder: invoices go out on the 5th"
  mnemo consolidate preview a1b2 c3d4 e5f6
  mnemo consolidate commit a1b2 c3d4 e5f6`

const consolidateShortDesc string = "Detect and merge duplicate memories"

func NewConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
	}

	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func apiTargetFromFlags(cmd *cobra.Command) (string, error) {
	target, _ := cmd.Flags().GetString("api-target")
	if cmd.Flags().Changed("api-target") {
		return target, nil
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return cfg.Client.APITarget, nil
}

func addTargetFlag(cmd *cobra.Command) {
	defaults := config.NewDefaultConfig()
	cmd.Flags().String("api-target", defaults.Client.APITarget, "Mnemo API server URL")
}

func newDetectCmd() *cobra.Command {
	var namespace string
	var threshold float64
	var limit int

	cmd := &cobra.Command{
		Use:   "detect <content>",
		Short: "Find stored memories duplicating the given content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runDetect(target, args[0], namespace, threshold, limit)
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to scope detection to")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.6, "Minimum similarity score (0..1)")
	cmd.Flags().IntVarP(&limit, "top", "k", 10, "Maximum candidates to return")
	addTargetFlag(cmd)
	return cmd
}

func runDetect(apiTarget, content, namespace string, threshold float64, limit int) error {
	body, err := postJSON(apiTarget, "/v1/consolidate/detect", map[string]any{
		"content":   content,
		"namespace": namespace,
		"threshold": threshold,
		"limit":     limit,
	})
	if err != nil {
		return err
	}

	var out struct {
		Count      int                     `json:"count"`
		Candidates []consolidate.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if out.Count == 0 {
		fmt.Println("No duplicates found.")
		return nil
	}

	fmt.Println()
	for _, cand := range out.Candidates {
		preview := strings.ReplaceAll(cand.Record.Content, "\n", " ")
		if len(preview) > 70 {
			preview = preview[:67] + "..."
		}
		fmt.Printf("  %s  %s  %s\n",
			cliui.FormatScore(cand.Score),
			cliui.KeyStyle.Render(cand.Record.ID),
			cliui.ValueStyle.Render(preview),
		)
	}
	fmt.Println()

	return nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <primary-id> <member-id>...",
		Short: "Check whether a merge plan is safe",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runValidate(target, args[0], args[1:])
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runValidate(apiTarget, primaryID string, memberIDs []string) error {
	body, err := postJSON(apiTarget, "/v1/consolidate/validate", map[string]any{
		"primary_id": primaryID,
		"member_ids": memberIDs,
	})
	if err != nil {
		return err
	}

	var eligibility consolidate.Eligibility
	if err := json.Unmarshal(body, &eligibility); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if eligibility.Valid {
		fmt.Printf("  %s Plan is eligible\n", cliui.SuccessMark)
		return nil
	}

	fmt.Printf("  %s Plan is not eligible:\n", cliui.FailMark)
	for _, reason := range eligibility.Reasons {
		fmt.Printf("    - %s\n", reason)
	}
	return nil
}

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <primary-id> <member-id>...",
		Short: "Show the merged record without changing anything",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runPreview(target, args[0], args[1:])
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runPreview(apiTarget, primaryID string, memberIDs []string) error {
	body, err := postJSON(apiTarget, "/v1/consolidate/preview", map[string]any{
		"primary_id": primaryID,
		"member_ids": memberIDs,
	})
	if err != nil {
		return err
	}

	var preview consolidate.Preview
	if err := json.Unmarshal(body, &preview); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n  %s\n\n", cliui.ValueStyle.Render(preview.Summary))

	for _, diff := range preview.FieldDiffs {
		fmt.Printf("  %s\n", cliui.KeyStyle.Render(diff.Field))
		fmt.Printf("    - %v\n", diff.Before)
		fmt.Printf("    + %v\n", diff.After)
	}
	fmt.Println()

	return nil
}

func newCommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit <primary-id> <member-id>...",
		Short: "Apply the merge atomically",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runCommit(target, args[0], args[1:])
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runCommit(apiTarget, primaryID string, memberIDs []string) error {
	body, err := postJSON(apiTarget, "/v1/consolidate/commit", map[string]any{
		"primary_id": primaryID,
		"member_ids": memberIDs,
	})
	if err != nil {
		return err
	}

	var result consolidate.CommitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("  %s Consolidated %d record(s) into %s\n",
		cliui.SuccessMark,
		result.Consolidated,
		cliui.KeyStyle.Render(primaryID),
	)
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past consolidation outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runHistory(target)
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runHistory(apiTarget string) error {
	historyURL, err := url.Parse(apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	historyURL.Path = "/v1/consolidate/history"

	body, err := doRequest(http.MethodGet, historyURL.String(), nil)
	if err != nil {
		return err
	}

	var out struct {
		SuccessRate float64                    `json:"success_rate"`
		History     []consolidate.HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n  Commit success rate: %s\n\n", cliui.FormatScore(out.SuccessRate))

	for _, entry := range out.History {
		fmt.Printf("  %s  %-9s %-10s %s\n",
			cliui.DimStyle.Render(entry.At.Format("2006-01-02 15:04:05")),
			entry.Stage,
			entry.Outcome,
			cliui.DimStyle.Render(entry.Detail),
		)
	}
	fmt.Println()

	return nil
}

func postJSON(apiTarget, path string, payload map[string]any) ([]byte, error) {
	target, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	target.Path = path

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	return doRequest(http.MethodPost, target.String(), data)
}

func doRequest(method, target string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Mnemo API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
