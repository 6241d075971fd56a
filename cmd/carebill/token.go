package main

import (
	"fmt"

	"github.com/artpar/carebill/adapters/hasher"
	"github.com/artpar/carebill/adapters/random"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a trigger token for the run endpoints",
	Long: `Generate a random bearer token and its bcrypt hash.

Put the hash in http.trigger_token_hash (or CAREBILL_TRIGGER_TOKEN_HASH)
and send the token as "Authorization: Bearer <token>" on POST /billing/run.

Examples:
  carebill token
  carebill token --token my-existing-secret`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var tokenValue string

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenValue, "token", "", "hash this token instead of generating one")
}

func runToken(cmd *cobra.Command, args []string) error {
	token := tokenValue
	if token == "" {
		var err error
		if token, err = random.TriggerToken(random.Real{}); err != nil {
			return err
		}
	}

	hash, err := hasher.NewBcrypt(0).Hash(token)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "token: %s\n", token)
	fmt.Fprintf(out, "hash:  %s\n", hash)
	return nil
}
