package cli

import (
	"github.com/spf13/cobra"

	"github.com/tOgg1/storechat/internal/logging"
	"github.com/tOgg1/storechat/internal/tui"
)

func newInboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Open the interactive inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbox(cmd, a)
		},
	}
}

func runInbox(cmd *cobra.Command, a *app) error {
	if !hasTTY() {
		return Exitf(ExitCodeUsage, "inbox requires an interactive terminal; use `storechat watch` instead")
	}
	// Log lines on stderr would corrupt the alternate screen.
	if a.cfg.Logging.File == "" {
		logging.Disable()
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	return commandError("inbox", tui.Run(cmd.Context(), engine))
}
