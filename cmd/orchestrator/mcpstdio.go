package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/exec"
	"github.com/unicitynetwork/unicity-orchestrator/internal/registry"
	"github.com/unicitynetwork/unicity-orchestrator/internal/server"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

// newMCPStdioCmd implements "mcp-stdio (--db-url)": the aggregate MCP
// endpoint spoken over line-framed JSON-RPC on stdin/stdout, for a host
// client that launches this binary as its own child process rather than
// connecting over HTTP.
func newMCPStdioCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-stdio",
		Short: "Serve the aggregate MCP endpoint over line-framed JSON-RPC on stdio",
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
				slog.Error("initial discovery failed, serving with a partial index", "error", err)
			}

			users := userstore.New(st)
			authn := auth.New(auth.Config{AllowAnonymous: true}, st, users)
			elic := elicitation.New(buildOAuthResolver(cfg))
			execu := exec.New(reg, super, st, elic, users)

			srv := server.New(cfg.Server, reg, super, authn, elic, execu, users, st, nil)
			m := srv.BuildStdioMCP(ctx)
			return m.ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
	return cmd
}
