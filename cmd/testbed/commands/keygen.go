package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/ssh"
)

func newKeygenCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the SSH key pair the testbed registers with the provider, unless it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				dir = filepath.Join(home, ".ssh")
			}

			pair, err := ssh.EnsureKeyPair(dir)
			if err != nil {
				return err
			}
			cmd.Printf("ssh_private_key_file: %s\n", pair.PrivateKeyPath)
			cmd.Printf("ssh_public_key_file: %s\n", pair.PublicKeyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the key pair (default ~/.ssh)")
	return cmd
}
