package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/stepflow/internal/connections"
	"github.com/rendis/stepflow/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage connections kept in the encrypted vault",
	Long: `Connections saved here are resolved by ${connections.<name>} when the
connections backend is "vault". The vault key is derived from
STEPFLOW_VAULT_PASSPHRASE.`,
}

var setConnectionCmd = &cobra.Command{
	Use:   "set-connection <name> <value|->",
	Short: "Store a connection; JSON values are kept structured",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[1]
		if raw == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			raw = strings.TrimSpace(string(data))
		}
		return withVault(cmd, func(v *secrets.AESVault) error {
			if err := connections.NewVaultService(v).Save(cmd.Context(), args[0], parseConnectionValue(raw)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connection %s saved\n", successStyle.Sprint(checkmark), args[0])
			return nil
		})
	},
}

var deleteConnectionCmd = &cobra.Command{
	Use:   "delete-connection <name>",
	Short: "Remove a stored connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(v *secrets.AESVault) error {
			if err := connections.NewVaultService(v).Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connection %s deleted\n", successStyle.Sprint(checkmark), args[0])
			return nil
		})
	},
}

var listSecretsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(v *secrets.AESVault) error {
			keys, err := v.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		})
	},
}

func init() {
	secretsCmd.AddCommand(setConnectionCmd, deleteConnectionCmd, listSecretsCmd)
	rootCmd.AddCommand(secretsCmd)
}

// withVault opens the run database and its vault for the duration of fn.
func withVault(cmd *cobra.Command, fn func(*secrets.AESVault) error) error {
	st, err := openStore(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	v, err := openVault(st, cfg.Vault)
	if err != nil {
		return err
	}
	return fn(v)
}

// parseConnectionValue keeps JSON input structured and anything else as a
// plain string.
func parseConnectionValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
