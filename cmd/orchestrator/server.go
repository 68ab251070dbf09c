package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"
	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/cluster"
	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/exec"
	"github.com/unicitynetwork/unicity-orchestrator/internal/registry"
	"github.com/unicitynetwork/unicity-orchestrator/internal/server"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

// newServerCmd implements "server (--port 8080, --admin-port 8081, --db-
// url)": the full public REST+MCP surface plus the admin-only /discover,
// /sync, /audit group, wired exactly as internal/server.New assembles them.
func newServerCmd(flags *globalFlags) *cobra.Command {
	var port, adminPort string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the public REST/MCP-over-HTTP surface and the admin surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx, "")
			if err != nil {
				return errConfig("load configuration: %v", err)
			}
			applyDBURL(cfg, flags.dbURL)
			if port != "" {
				cfg.Server.Port = port
			}
			if adminPort != "" {
				cfg.Server.AdminPort = adminPort
			}

			srv, super, err := wireServer(ctx, cfg, flags.mcpConfig)
			if err != nil {
				return err
			}
			defer super.Close()

			into.Init(func(ctx context.Context) error {
				slog.Info("starting server", "port", cfg.Server.Port, "admin_port", cfg.Server.AdminPort)
				return srv.Start(ctx)
			},
				into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
				into.WithMsgf("%s [%s]", name, version),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "public HTTP port")
	cmd.Flags().StringVar(&adminPort, "admin-port", "8081", "admin HTTP port (/discover, /sync)")
	return cmd
}

// wireServer builds every component server.New needs — store, embedding
// manager, supervisor, registry, execution coordinator, auth chain — plus
// an initial knowledge-graph warmup, returning the unstarted *server.Server
// and the supervisor so the caller can close it on shutdown.
func wireServer(ctx context.Context, cfg *config.Config, mcpConfigPath string) (*server.Server, *superCloser, error) {
	st, _, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	embedMgr, err := buildEmbeddingManager(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	super, err := buildSupervisor(mcpConfigPath)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	reg := registry.New(embedMgr, super, st)
	if err := reg.Discover(ctx); err != nil {
		slog.Error("initial discovery failed, serving with a partial index", "error", err)
	}

	users := userstore.New(st)
	authn := auth.New(auth.Config{
		StaticAPIKey:    cfg.Auth.StaticAPIKey,
		EnableDBAPIKeys: cfg.Auth.EnableDBAPIKeys,
		JWKSURL:         cfg.Auth.JWKSURL,
		JWTIssuer:       cfg.Auth.JWTIssuer,
		JWTAudience:     cfg.Auth.JWTAudience,
		AllowAnonymous:  cfg.Server.AllowAnonymous,
	}, st, users)
	elic := elicitation.New(buildOAuthResolver(cfg))
	execu := exec.New(reg, super, st, elic, users)

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("cluster: %w", err)
	}

	srv := server.New(cfg.Server, reg, super, authn, elic, execu, users, st, cl)
	return srv, &superCloser{super: super, store: st}, nil
}

// superCloser releases the supervisor's child processes/connections and
// the store in reverse-of-acquisition order on shutdown.
type superCloser struct {
	super interface{ Close() }
	store interface{ Close() }
}

func (s *superCloser) Close() {
	s.super.Close()
	s.store.Close()
}
