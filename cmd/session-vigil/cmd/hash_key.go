package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Session-Vigil/Sessionvigil/internal/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a stored hash for a presenter API key",
	Long: `Generate the stored hash of a presenter API key for use in config.

By default the key is hashed with Argon2id and printed in PHC format,
which can be used directly in the auth.api_key_hash field. Pass --sha256
to emit the weaker "sha256:<hex>" form for deployments that derive key
hashes outside this binary.

Example:
  session-vigil hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=47104,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  session-vigil hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if hashKeySHA256 {
			fmt.Println(auth.HashKeySHA256(key))
			return nil
		}

		hash, err := auth.HashKeyArgon2id(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "emit sha256:<hex> instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
