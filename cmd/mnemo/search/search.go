// Package searchcmder provides the search command for querying stored memories.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/search"
)

var (
	rankStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	categoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
)

type searchCommander struct {
	query     string
	strategy  string
	namespace string
	limit     int
	quiet     bool

	apiTarget string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search stored memories via the Mnemo API.

Queries the running API server and prints ranked results. Strategies:
fulltext (default, uses the backend's native index when available),
fallback (index-free substring matching), and recent (newest first,
no text predicate).

Use --quiet to output only record ids, one per line. This is useful for
piping into other commands like mnemo consolidate.

Example:
  mnemo search "postgres connection pooling"
  mnemo search "invoices" --namespace billing --top 10
  mnemo search "" --strategy recent
  mnemo consolidate validate $(mnemo search "invoices" --quiet --top 3)`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().IntVarP(&cmder.limit, "top", "k", 5, "Number of results to return")
	cmd.Flags().StringVar(&cmder.strategy, "strategy", "", "Search strategy (fulltext, fallback, recent)")
	cmd.Flags().StringVarP(&cmder.namespace, "namespace", "n", "", "Namespace to scope the search to")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only record ids, one per line (for piping)")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", defaults.Client.APITarget, "Mnemo API server URL")

	return cmd
}

// Output is the parsed body of a /v1/search response.
type Output struct {
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	output, err := SearchAPI(c.apiTarget, c.query, c.strategy, c.namespace, c.limit)
	if err != nil {
		return err
	}

	if output.Count == 0 {
		if !c.quiet {
			fmt.Println("No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, result := range output.Results {
			fmt.Println(result.ID)
		}
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		c.printResult(i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, result search.Result) {
	fmt.Printf("  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		idStyle.Render(result.ID),
	)

	if result.Record == nil {
		fmt.Printf("  %s\n\n", dimStyle.Render("(no record attached)"))
		return
	}

	preview := result.Record.Content
	if len(preview) > 80 {
		preview = preview[:77] + "..."
	}
	preview = strings.ReplaceAll(preview, "\n", " ")

	fmt.Printf("  %s\n", previewStyle.Render(preview))

	meta := []string{result.StrategyUsed}
	if result.Record.Category != "" {
		meta = append(meta, categoryStyle.Render(result.Record.Category))
	}
	if result.Record.Namespace != "" {
		meta = append(meta, result.Record.Namespace)
	}
	fmt.Printf("  %s\n\n", dimStyle.Render(strings.Join(meta, " · ")))
}

// SearchAPI calls the mnemo search API and returns the parsed output.
// Exported so other commands (e.g. consolidate detect) can reuse it.
func SearchAPI(apiTarget, query, strategy, namespace string, limit int) (*Output, error) {
	searchURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	searchURL.Path = "/v1/search"
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	if strategy != "" {
		q.Set("strategy", strategy)
	}
	if namespace != "" {
		q.Set("namespace", namespace)
	}
	searchURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Mnemo API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var output Output
	if err := json.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &output, nil
}
