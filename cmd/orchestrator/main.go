// Command orchestrator is the meta-MCP server's CLI surface: it fronts the
// child-service supervisor, tool index, knowledge graph, symbolic reasoner,
// and execution coordinator behind nine subcommands, each wrapping its
// long-running work in the shared logi/into process lifecycle.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
)

var (
	name    = "unicity-orchestrator"
	version = "v0.0.0"
)

// globalFlags are the flags every subcommand accepts, mirroring the
// repeated "--db-url" flag across the CLI surface.
type globalFlags struct {
	dbURL     string
	mcpConfig string
}

func main() {
	config.Service = name + "/" + version

	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Meta-MCP server: index, select, and route calls across a fleet of child MCP services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dbURL, "db-url", "", "store connection string (postgres://, sqlite://, or \"memory\")")
	root.PersistentFlags().StringVar(&flags.mcpConfig, "mcp-config", "", "path to the mcp.json child-service manifest (defaults to $MCP_CONFIG/$XDG_CONFIG_HOME/./mcp.json)")

	root.AddCommand(
		newInitCmd(flags),
		newDiscoverToolsCmd(flags),
		newQueryCmd(flags),
		newServerCmd(flags),
		newMCPHTTPCmd(flags),
		newMCPStdioCmd(flags),
		newCreateApiKeyCmd(flags),
		newListApiKeysCmd(flags),
		newRevokeApiKeyCmd(flags),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(codeOf(err))
	}
}
