// Package cli implements the storechat command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Execute runs the storechat command line.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "storechat",
		Short: "Storefront buyer/seller messaging",
		Long: `storechat keeps your storefront conversations in sync with the messaging service.

With no subcommand it opens the inbox when attached to a terminal and streams
events otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if hasTTY() {
				return runInbox(cmd, a)
			}
			return runWatch(cmd, a, StreamConfig{})
		},
	}
	a.addPersistentFlags(cmd)

	cmd.AddCommand(
		newInboxCmd(a),
		newConversationsCmd(a),
		newThreadCmd(a),
		newSendCmd(a),
		newDeleteCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
