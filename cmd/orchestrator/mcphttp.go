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

// mcpHTTPFlags mirrors the mcp-http authentication flag set, layered on top
// of whatever internal/config.Load already resolved from file/env.
type mcpHTTPFlags struct {
	bind             string
	allowAnonymous   bool
	apiKey           string
	enableDBAPIKeys  bool
	jwksURL          string
	jwtIssuer        string
	jwtAudience      string
}

// newMCPHTTPCmd implements "mcp-http (--bind 0.0.0.0:3942, --db-url,
// --allow-anonymous, --api-key, --enable-db-api-keys, --jwks-url, --jwt-
// issuer, --jwt-audience)": the aggregate MCP-over-HTTP endpoint alone, with
// no REST mirror and no admin surface.
func newMCPHTTPCmd(flags *globalFlags) *cobra.Command {
	f := &mcpHTTPFlags{}

	cmd := &cobra.Command{
		Use:   "mcp-http",
		Short: "Serve the aggregate MCP endpoint over streamable HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx, "")
			if err != nil {
				return errConfig("load configuration: %v", err)
			}
			applyDBURL(cfg, flags.dbURL)

			if f.bind != "" {
				cfg.Server.Bind = f.bind
			}
			if f.allowAnonymous {
				cfg.Server.AllowAnonymous = true
			}
			if f.apiKey != "" {
				cfg.Auth.StaticAPIKey = f.apiKey
			}
			if f.enableDBAPIKeys {
				cfg.Auth.EnableDBAPIKeys = true
			}
			if f.jwksURL != "" {
				cfg.Auth.JWKSURL = f.jwksURL
			}
			if f.jwtIssuer != "" {
				cfg.Auth.JWTIssuer = f.jwtIssuer
			}
			if f.jwtAudience != "" {
				cfg.Auth.JWTAudience = f.jwtAudience
			}

			st, _, err := buildStore(ctx, cfg)
			if err != nil {
				return err
			}

			embedMgr, err := buildEmbeddingManager(ctx, cfg)
			if err != nil {
				st.Close()
				return err
			}

			super, err := buildSupervisor(flags.mcpConfig)
			if err != nil {
				st.Close()
				return err
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
				super.Close()
				st.Close()
				return fmt.Errorf("cluster: %w", err)
			}

			srv := server.New(cfg.Server, reg, super, authn, elic, execu, users, st, cl)
			defer func() {
				super.Close()
				st.Close()
			}()

			into.Init(func(ctx context.Context) error {
				slog.Info("starting mcp-http", "bind", cfg.Server.Bind)
				return srv.StartMCPOnly(ctx, cfg.Server.Bind)
			},
				into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
				into.WithMsgf("%s [%s]", name, version),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.bind, "bind", "0.0.0.0:3942", "listen address for the MCP-over-HTTP endpoint")
	cmd.Flags().BoolVar(&f.allowAnonymous, "allow-anonymous", false, "permit unauthenticated requests")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "static API key accepted verbatim via X-API-Key")
	cmd.Flags().BoolVar(&f.enableDBAPIKeys, "enable-db-api-keys", false, "accept DB-backed uo_{8}_{32} API keys via X-API-Key")
	cmd.Flags().StringVar(&f.jwksURL, "jwks-url", "", "JWKS endpoint for Bearer-JWT authentication")
	cmd.Flags().StringVar(&f.jwtIssuer, "jwt-issuer", "", "required JWT issuer claim")
	cmd.Flags().StringVar(&f.jwtAudience, "jwt-audience", "", "required JWT audience claim")
	return cmd
}
