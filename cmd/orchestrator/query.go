package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/registry"
)

// newQueryCmd implements "query <text> (--limit, --db-url)": a local, read-
// only select_tool call against whatever was last persisted by discover-
// tools, with no child services started (registry.LoadSnapshot rebuilds the
// graph from the store alone, per its doc comment).
func newQueryCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a local semantic tool query against the last discovered index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx, "")
			if err != nil {
				return errConfig("load configuration: %v", err)
			}
			applyDBURL(cfg, flags.dbURL)

			st, _, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			embedMgr, err := buildEmbeddingManager(ctx, cfg)
			if err != nil {
				return err
			}

			reg := registry.New(embedMgr, nil, st)
			if err := reg.LoadSnapshot(ctx); err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}

			selections, err := reg.SelectTool(ctx, args[0], nil, limit, 0, model.DefaultPreferences(""))
			if err != nil {
				return fmt.Errorf("select_tool: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(selections)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of selections to return (0 uses the default top-k)")
	return cmd
}
