// Package cli implements chatctl, a terminal client for a chatsync server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

const defaultServer = "http://localhost:8080"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal client for a chatsync server",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("server", "s", "", "server base URL (default from credentials, then "+defaultServer+")")
	root.PersistentFlags().StringP("output", "o", "text", "output format: text, json or yaml")

	root.AddCommand(
		signupCmd(),
		signinCmd(),
		usersCmd(),
		openCmd(),
		sendCmd(),
		sendMediaCmd("send-image", "image"),
		sendMediaCmd("send-audio", "audio"),
		messagesCmd(),
		readCmd(),
		watchCmd(),
	)
	return root
}

// Execute runs chatctl and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serverURL resolves the --server flag, then saved credentials.
func serverURL(cmd *cobra.Command, saved *credentials) string {
	if s, _ := cmd.Flags().GetString("server"); s != "" {
		return s
	}
	if saved != nil && saved.Server != "" {
		return saved.Server
	}
	if s := os.Getenv("CHATSYNC_SERVER"); s != "" {
		return s
	}
	return defaultServer
}

// authedClient returns a client carrying the saved token.
func authedClient(cmd *cobra.Command) (*Client, *credentials, error) {
	saved, err := loadCredentials()
	if err != nil {
		return nil, nil, err
	}
	return NewClient(serverURL(cmd, saved), saved.Token), saved, nil
}
