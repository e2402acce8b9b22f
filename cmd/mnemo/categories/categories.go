// Package categoriescmder provides commands for managing the category hierarchy.
package categoriescmder

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
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
)

const categoriesLongDesc string = `Manage the category hierarchy.

Categories form a tree (e.g. Technology/Programming) used to classify
memories and to widen category-filtered searches to descendants.

Use subcommands to list, add, or remove categories:
  mnemo categories list [substring]       List categories
  mnemo categories add <name> [--parent]  Add a category
  mnemo categories remove <name>          Remove a category and its subtree

Examples:
  mnemo categories add Technology
  mnemo categories add Programming --parent Technology
  mnemo categories list Tech
  mnemo categories remove Technology/Programming`

const categoriesShortDesc string = "Manage the category hierarchy"

func NewCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: categoriesShortDesc,
		Long:  categoriesLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())

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

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [substring]",
		Short: "List categories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}

			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			return runList(target, query)
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runList(apiTarget, query string) error {
	listURL, err := url.Parse(apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	listURL.Path = "/v1/categories"
	if query != "" {
		q := listURL.Query()
		q.Set("q", query)
		listURL.RawQuery = q.Encode()
	}

	body, err := doRequest(http.MethodGet, listURL.String(), nil)
	if err != nil {
		return err
	}

	var out struct {
		Count      int              `json:"count"`
		Categories []hierarchy.Node `json:"categories"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if out.Count == 0 {
		fmt.Println("No categories found.")
		return nil
	}

	for _, node := range out.Categories {
		indent := strings.Repeat("  ", node.Depth)
		fmt.Printf("%s%s %s\n",
			indent,
			cliui.KeyStyle.Render(node.Name),
			cliui.DimStyle.Render(node.FullPath),
		)
	}

	return nil
}

func newAddCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runAdd(target, args[0], parent)
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent category path (must already exist)")
	addTargetFlag(cmd)
	return cmd
}

func runAdd(apiTarget, name, parent string) error {
	addURL, err := url.Parse(apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	addURL.Path = "/v1/categories"

	payload, err := json.Marshal(map[string]string{
		"name":   name,
		"parent": parent,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	body, err := doRequest(http.MethodPost, addURL.String(), payload)
	if err != nil {
		return err
	}

	var node hierarchy.Node
	if err := json.Unmarshal(body, &node); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("  %s Added %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(node.FullPath),
	)
	return nil
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a category and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := apiTargetFromFlags(cmd)
			if err != nil {
				return err
			}
			return runRemove(target, args[0])
		},
	}

	addTargetFlag(cmd)
	return cmd
}

func runRemove(apiTarget, name string) error {
	removeURL, err := url.Parse(apiTarget)
	if err != nil {
		return fmt.Errorf("invalid API target URL: %w", err)
	}
	removeURL.Path = "/v1/categories/" + url.PathEscape(name)

	if _, err := doRequest(http.MethodDelete, removeURL.String(), nil); err != nil {
		return err
	}

	fmt.Printf("  %s Removed %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(name),
	)
	return nil
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
