package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/server"
)

var (
	scenePath   string
	srcRoot     string
	dbPath      string
	jsonOutput  bool
	printReport bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis pass and print the result",
	Example: `  refgraph analyze --scene level1.yaml --src ./MyGame
  refgraph analyze --scene level1.yaml --db graph.db --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ws, err := openWorkspace(ctx, cfg, logger, workspaceOptions{snapshot: scenePath, src: srcRoot, db: dbPath})
		if err != nil {
			return err
		}
		defer ws.Close()

		host, roots, err := ws.loadScene(ctx)
		if err != nil {
			return err
		}
		res, err := ws.analyzer.Analyze(ctx, host, roots)
		if err != nil {
			return err
		}
		if err := ws.save(ctx, server.PassFromResult(res)); err != nil {
			return fmt.Errorf("failed to store pass: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Summary server.AnalyzeSummary `json:"summary"`
				Nodes   []*graph.Node         `json:"nodes"`
				Edges   []graph.Edge          `json:"edges"`
				Report  *report.Report        `json:"report"`
			}{server.Summarize(res), res.Nodes, res.Edges, res.Report})
		}

		sum := server.Summarize(res)
		fmt.Fprintf(out, "pass %s: %d nodes, %d edges (%s), %d unresolved, %.2fs\n",
			sum.Pass, sum.Nodes, len(res.Edges), edgeBreakdown(sum.Edges), sum.Unresolved, sum.Duration)
		if sum.Exhausted {
			fmt.Fprintln(out, "node budget exhausted, the graph is partial")
		}
		if printReport {
			fmt.Fprintln(out)
			_, err = res.Report.WriteTo(out)
			return err
		}
		return nil
	},
}

func edgeBreakdown(counts map[string]int) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&scenePath, "scene", "", "Scene snapshot YAML")
	analyzeCmd.Flags().StringVar(&srcRoot, "src", "", "Project root holding the behavior sources (default: discovered)")
	analyzeCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to store the pass in")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print nodes, edges and report as JSON")
	analyzeCmd.Flags().BoolVar(&printReport, "report", true, "Print the per-type source report")
	analyzeCmd.MarkFlagRequired("scene")
}
