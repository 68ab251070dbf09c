package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/registry"
)

// newDiscoverToolsCmd implements "discover-tools (--db-url)": a one-shot
// warmup pass — start/attach every configured child, normalize and embed its
// tools, rebuild the knowledge graph — identical to what POST /discover
// triggers remotely.
func newDiscoverToolsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover-tools",
		Short: "Warm up every configured child service and (re)build the tool index",
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

			super, err := buildSupervisor(flags.mcpConfig)
			if err != nil {
				return err
			}
			defer super.Close()

			reg := registry.New(embedMgr, super, st)
			if err := reg.Discover(ctx); err != nil {
				return fmt.Errorf("discover: %w", err)
			}

			tools, err := reg.DebugListTools(ctx)
			if err != nil {
				return fmt.Errorf("list indexed tools: %w", err)
			}
			fmt.Printf("indexed %d tool(s) across %d service(s)\n", len(tools), len(super.Services()))
			for _, t := range tools {
				fmt.Printf("  %s\t%s\n", t.ToolID, t.Description)
			}
			return nil
		},
	}
	return cmd
}
