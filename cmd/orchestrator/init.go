package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
)

// newInitCmd implements "init (--db-url)": open the configured store, which
// runs that backend's migrations as a side effect of store.New, then close
// it. memory stores have nothing to create and succeed trivially.
func newInitCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the orchestrator's schema in the configured store",
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

			fmt.Printf("schema ready (driver=%s)\n", cfg.Store.Driver)
			return nil
		},
	}
	return cmd
}
