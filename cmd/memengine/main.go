package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/engine"
	"github.com/traelm/memengine/pkg/logging"
	"github.com/traelm/memengine/pkg/manager"
	"github.com/traelm/memengine/pkg/retrieval"
)

var (
	dataDir           string
	personalRulesPath string
	projectRulesPath  string
	verbose           bool
	logFormat         string
)

var rootCmd = &cobra.Command{
	Use:   "memengine",
	Short: "CLI for the long-term memory engine",
	Long:  `A command-line interface for storing, retrieving, and managing memories in a memengine instance.`,
}

func openEngine() (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	cfg.Persistence.Enabled = true
	cfg.Persistence.Dir = dataDir
	cfg.Rules.PersonalRulesPath = personalRulesPath
	cfg.Rules.ProjectRulesPath = projectRulesPath

	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	var logger logging.Logger
	if logFormat == "json" {
		logger = logging.NewJSON(os.Stdout, level)
	} else {
		logger = logging.NewStd(level)
	}
	e := engine.New(cfg, logger)
	if err := e.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return e, nil
}

var storeCmd = &cobra.Command{
	Use:   "store <id> <content>",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, content := args[0], args[1]
		kind, _ := cmd.Flags().GetString("type")
		tagsStr, _ := cmd.Flags().GetString("tags")
		userID, _ := cmd.Flags().GetString("user")
		sessionID, _ := cmd.Flags().GetString("session")
		domain, _ := cmd.Flags().GetString("domain")
		task, _ := cmd.Flags().GetString("task")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		in := core.MemoryInput{
			ID:      id,
			Type:    core.MemoryType(kind),
			Content: content,
		}
		if tagsStr != "" {
			in.Tags = strings.Split(tagsStr, ",")
		}
		if userID != "" || sessionID != "" || domain != "" || task != "" {
			in.Context = &core.Context{UserID: userID, SessionID: sessionID, Domain: domain, Task: task}
		}

		m, err := e.StoreMemory(in)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		fmt.Printf("stored %s (importance %.2f)\n", m.ID, m.Importance)
		return nil
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <text>",
	Short: "Retrieve memories matching text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := args[0]
		limit, _ := cmd.Flags().GetInt("limit")
		includeRelated, _ := cmd.Flags().GetBool("related")
		asJSON, _ := cmd.Flags().GetBool("json")
		minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		result, err := e.RetrieveMemories(retrieval.Query{
			Text:           text,
			Limit:          limit,
			IncludeRelated: includeRelated,
			MinConfidence:  minConfidence,
		})
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}

		if asJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%d results (of %d total), confidence %.3f\n", len(result.Memories), result.TotalResults, result.Confidence)
		for i, sm := range result.Memories {
			fmt.Printf("%d. %s (score %.3f): %s\n", i+1, sm.Memory.ID, sm.Score, sm.Memory.Content)
		}
		if includeRelated {
			fmt.Printf("related nodes: %d\n", len(result.RelatedNodes))
		}
		return nil
	},
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance <agent-id> <current-task>",
	Short: "Enhance an agent with matching memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, task := args[0], args[1]

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		result, err := e.EnhanceAgent(manager.Agent{ID: agentID}, manager.AgentContext{CurrentTask: task})
		if err != nil {
			return fmt.Errorf("enhance: %w", err)
		}
		fmt.Printf("applied %d memories, performance improvement %.3f\n", result.AppliedMemories, result.PerformanceImprovement)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display aggregate system statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		stats := e.GetSystemStats()
		if asJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("memories: %d\n", stats.MemoryCount)
		fmt.Printf("graph enabled: %t (nodes %d, edges %d)\n", stats.GraphEnabled, stats.NodeCount, stats.EdgeCount)
		fmt.Printf("total queries: %d, queue size: %d\n", stats.RetrievalStats.TotalQueries, stats.RetrievalStats.QueueSize)
		fmt.Printf("rule engine state: %s\n", stats.RuleEngineState)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate data integrity between the store and the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		report := e.ValidateDataIntegrity()
		fmt.Printf("valid: %t\n", report.Valid)
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		for _, msg := range report.Errors {
			fmt.Printf("error: %s\n", msg)
		}
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <id1> <id2> [idN...]",
	Short: "Merge two or more memories into a new one",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetString("summary")

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		patch := core.MergePatch{}
		if summary != "" {
			patch.Summary = &summary
		}
		merged, err := e.Merge(args, patch)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		fmt.Printf("merged into %s\n", merged.ID)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, list, or restore knowledge graph snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create [label]",
	Short: "Capture the current knowledge graph state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		meta, err := e.CreateGraphSnapshot(label)
		if err != nil {
			return fmt.Errorf("snapshot create: %w", err)
		}
		fmt.Printf("created %s (nodes %d, edges %d)\n", meta.ID, meta.NodeCount, meta.EdgeCount)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained knowledge graph snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		metas, err := e.ListGraphSnapshots()
		if err != nil {
			return fmt.Errorf("snapshot list: %w", err)
		}
		for _, m := range metas {
			fmt.Printf("%s\t%s\tnodes=%d edges=%d\t%s\n", m.ID, m.Label, m.NodeCount, m.EdgeCount, m.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore the knowledge graph from a retained snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Destroy()

		if err := e.RestoreGraphSnapshot(args[0]); err != nil {
			return fmt.Errorf("snapshot restore: %w", err)
		}
		fmt.Printf("restored %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "data", "Persistence directory")
	rootCmd.PersistentFlags().StringVar(&personalRulesPath, "personal-rules", "", "Path to a personal rules YAML file")
	rootCmd.PersistentFlags().StringVar(&projectRulesPath, "project-rules", "", "Path to a project rules YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format: text or json")

	storeCmd.Flags().String("type", "semantic", "Memory type")
	storeCmd.Flags().String("tags", "", "Comma-separated tags")
	storeCmd.Flags().String("user", "", "Context userId")
	storeCmd.Flags().String("session", "", "Context sessionId")
	storeCmd.Flags().String("domain", "", "Context domain")
	storeCmd.Flags().String("task", "", "Context task")

	retrieveCmd.Flags().Int("limit", 10, "Maximum results")
	retrieveCmd.Flags().Bool("related", false, "Include related graph nodes")
	retrieveCmd.Flags().Bool("json", false, "Output as JSON")
	retrieveCmd.Flags().Float64("min-confidence", 0, "Minimum per-memory score floor")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	mergeCmd.Flags().String("summary", "", "Override summary for the merged memory")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRestoreCmd)
	rootCmd.AddCommand(storeCmd, retrieveCmd, enhanceCmd, statsCmd, validateCmd, mergeCmd, snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
