package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/quotamon/adapters/hasher"
	"github.com/artpar/quotamon/adapters/random"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an admin bearer token and its bcrypt hash",
	Long: `Generate a random bearer token for the /v1 API together with the
bcrypt hash the server verifies it against.

Give the token to callers and configure the hash on the server:

  quotamon token
  QUOTAMON_ADMIN_TOKEN_HASH='<hash>' quotamon serve`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	suffix, err := random.Real{}.Hex(48)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	token := "qm_" + suffix

	hash, err := hasher.NewBcrypt(0).Hash(token)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	fmt.Printf("Token: %s\n", token)
	fmt.Printf("Hash:  %s\n", hash)
	fmt.Println()
	fmt.Println("Server configuration (hash only; the token itself is never stored):")
	fmt.Printf("  QUOTAMON_ADMIN_TOKEN_HASH='%s'\n", hash)
	fmt.Println()
	fmt.Println("Callers send:")
	fmt.Printf("  Authorization: Bearer %s\n", token)
	return nil
}
