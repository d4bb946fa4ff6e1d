package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "send <conversation-id> [message]",
		Short: "Send a message",
		Long: `Send a message to a conversation.

The message is read from stdin when not given as an argument.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := ""
			if len(args) > 1 {
				body = args[1]
			} else {
				data, err := readStdinIfPiped()
				if err != nil {
					return Exitf(ExitCodeFailure, "read stdin: %v", err)
				}
				body = data
			}
			if strings.TrimSpace(body) == "" {
				return Exitf(ExitCodeUsage, "message body is required")
			}

			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			if engine.UserID() == "" {
				return Exitf(ExitCodeUsage, "current user unknown; set auth.user_id or use a token with a subject")
			}
			if err := engine.Select(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
				return commandError("open conversation", err)
			}

			engine.SetDraft(body)
			attempt, err := engine.Submit(cmd.Context())
			if err != nil {
				return commandError("send", err)
			}
			if attempt == nil {
				return Exitf(ExitCodeUsage, "nothing to send")
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), attempt.Message)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), attempt.Message.ID)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func readStdinIfPiped() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
