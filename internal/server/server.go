// Package server hosts the orchestrator's public surface: the aggregate MCP
// endpoint (unicity.select_tool/plan_tools/execute_tool/debug.list_tools plus
// every forwarded child prompt and resource), the REST mirror of the same
// operations, the elicitation resolution endpoints, and a separate
// admin-only surface for POST /discover and POST /sync.
//
// It uses the same ada.New() + middleware chain + mux.Group sub-routing +
// separate admin ada.Server shape throughout, routing only the orchestrator's
// own surface rather than a general-purpose gateway's provider/workflow/
// trigger/API-token CRUD and embedded UI.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/cluster"
	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/exec"
	"github.com/unicitynetwork/unicity-orchestrator/internal/registry"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/internal/supervisor"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

// Server wires every orchestrator component into HTTP: the public
// REST/MCP-over-HTTP mux and a separate admin mux bound to its own port.
type Server struct {
	cfg config.Server

	public *ada.Server
	admin  *ada.Server

	registry *registry.Registry
	super    *supervisor.Supervisor
	authn    *auth.Authenticator
	elic     *elicitation.Coordinator
	execu    *exec.Coordinator
	users    *userstore.UserStore
	store    store.Store
	cluster  *cluster.Cluster

	generation atomic.Uint64
}

// New builds the public and admin muxes and registers every route. It does
// not start listening; call Start.
func New(
	cfg config.Server,
	reg *registry.Registry,
	super *supervisor.Supervisor,
	authn *auth.Authenticator,
	elic *elicitation.Coordinator,
	execu *exec.Coordinator,
	users *userstore.UserStore,
	st store.Store,
	cl *cluster.Cluster,
) *Server {
	s := &Server{
		cfg:      cfg,
		registry: reg,
		super:    super,
		authn:    authn,
		elic:     elic,
		execu:    execu,
		users:    users,
		store:    st,
		cluster:  cl,
	}

	s.public = newMux()
	publicGroup := s.public.Group("")
	publicGroup.GET("/health", s.Health)
	publicGroup.POST("/query", s.Query)
	publicGroup.POST("/plan", s.Plan)
	publicGroup.POST("/execute", s.ExecuteTool)
	publicGroup.GET("/services", s.ListServices)
	publicGroup.POST("/mcp", s.MCP)
	publicGroup.GET("/mcp", s.MCP)

	elicGroup := publicGroup.Group("/elicitations")
	elicGroup.GET("/*", s.GetElicitation)
	elicGroup.POST("/*/form", s.CompleteForm)
	elicGroup.POST("/*/approval", s.CompleteApproval)
	elicGroup.POST("/*/decline", s.DeclineElicitation)

	publicGroup.GET("/oauth/callback", s.OAuthCallback)

	s.admin = newMux()
	adminGroup := s.admin.Group("")
	adminGroup.POST("/discover", s.Discover)
	adminGroup.POST("/sync", s.Sync)
	adminGroup.GET("/audit", s.ListAudit)

	return s
}

func newMux() *ada.Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)
	return mux
}

// Start runs the public and admin listeners until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() {
		errc <- s.public.StartWithContext(ctx, net.JoinHostPort(s.cfg.Host, s.cfg.Port))
	}()
	go func() {
		errc <- s.admin.StartWithContext(ctx, net.JoinHostPort(s.cfg.Host, s.cfg.AdminPort))
	}()

	if s.cluster != nil {
		go func() {
			_ = s.cluster.Start(ctx, s.onPeerGeneration)
		}()
	}

	err := <-errc
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errc
}

// StartMCPOnly runs only the public mux bound to addr, with no admin
// listener and no peer-generation broadcast — used by cmd/orchestrator's
// mcp-http subcommand, which exposes the aggregate MCP endpoint alone with
// its own authentication flag set and no /discover admin surface.
func (s *Server) StartMCPOnly(ctx context.Context, addr string) error {
	err := s.public.StartWithContext(ctx, addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// onPeerGeneration re-runs discovery locally whenever a peer reports having
// rebuilt a newer knowledge-graph generation than this instance holds.
func (s *Server) onPeerGeneration(generation uint64) {
	if generation <= s.generation.Load() {
		return
	}
	if err := s.registry.Discover(context.Background()); err != nil {
		return
	}
	s.generation.Store(generation)
}
