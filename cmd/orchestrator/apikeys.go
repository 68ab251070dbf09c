package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
)

// newCreateApiKeyCmd implements "create-api-key --name": mints a system-
// level credential and prints the full key exactly once, matching the
// ^uo_[0-9a-f]{8}_[0-9a-f]{32}$ display format.
func newCreateApiKeyCmd(flags *globalFlags) *cobra.Command {
	var keyName string

	cmd := &cobra.Command{
		Use:   "create-api-key",
		Short: "Mint a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyName == "" {
				return errMissingEnv("--name is required")
			}

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

			fullKey, key, err := auth.GenerateApiKey("", keyName)
			if err != nil {
				return fmt.Errorf("generate api key: %w", err)
			}
			key.CreatedAt = time.Now().UTC()

			if err := st.CreateApiKey(ctx, key); err != nil {
				return fmt.Errorf("persist api key: %w", err)
			}

			fmt.Printf("%s\n", fullKey)
			fmt.Fprintf(cmd.OutOrStdout(), "prefix: %s (save the key above now; it is never shown again)\n", key.Prefix)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyName, "name", "", "display name for the new key")
	return cmd
}

// newListApiKeysCmd implements "list-api-keys": lists every system-level key
// (prefix, name, active, created, last used — never the secret).
func newListApiKeysCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-api-keys",
		Short: "List API keys by prefix",
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

			keys, err := st.ListApiKeys(ctx, "")
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}
			if len(keys) == 0 {
				fmt.Println("no api keys")
				return nil
			}
			for _, k := range keys {
				status := "active"
				if !k.Active {
					status = "revoked"
				}
				fmt.Printf("%s\t%s\t%s\tcreated=%s\n", k.Prefix, k.Name, status, k.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	return cmd
}

// newRevokeApiKeyCmd implements "revoke-api-key <prefix>": marks a key
// inactive so that revoking the returned prefix renders the key unusable on
// the very next authentication attempt.
func newRevokeApiKeyCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-api-key <prefix>",
		Short: "Revoke an API key by its prefix",
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

			if err := st.RevokeApiKey(ctx, args[0]); err != nil {
				return fmt.Errorf("revoke api key %q: %w", args[0], err)
			}
			fmt.Printf("revoked %s\n", args[0])
			return nil
		},
	}
	return cmd
}
