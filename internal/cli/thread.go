package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/storechat/internal/models"
)

func newThreadCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "thread <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := engine.Select(cmd.Context(), id); err != nil {
				return commandError("load thread", err)
			}

			msgs := models.EntryMessages(engine.Thread())
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), msgs)
			}
			return writeThread(cmd.OutOrStdout(), msgs, engine.UserID())
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func writeThread(out io.Writer, msgs []models.Message, userID string) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(out, "No messages.")
		return err
	}
	rows := make([][]string, 0, len(msgs))
	for _, msg := range msgs {
		from := msg.SenderID
		if msg.SenderID == userID {
			from = "you"
		}
		rows = append(rows, []string{
			msg.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			from,
			formatYesNo(msg.IsRead),
			truncateCell(msg.Content, 80),
		})
	}
	return writeTable(out, []string{"AT", "FROM", "READ", "MESSAGE"}, rows)
}
