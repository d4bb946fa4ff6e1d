package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/storechat/internal/models"
)

type conversationRow struct {
	models.Conversation
	Unread int `json:"unread"`
}

func newConversationsCmd(a *app) *cobra.Command {
	var (
		query      string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls", "list"},
		Short:   "List conversations with unread counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.newEngine()
			if err != nil {
				return err
			}
			if err := engine.RefreshRoster(cmd.Context()); err != nil {
				return commandError("list conversations", err)
			}

			counts := engine.UnreadCounts()
			convs := engine.Search(query)
			rows := make([]conversationRow, 0, len(convs))
			for _, conv := range convs {
				rows = append(rows, conversationRow{Conversation: conv, Unread: counts[conv.ID]})
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			return writeConversations(cmd.OutOrStdout(), rows, engine.UserID())
		},
	}
	cmd.Flags().StringVarP(&query, "search", "s", "", "filter by seller, customer or product name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}

func writeConversations(out io.Writer, rows []conversationRow, userID string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No conversations.")
		return err
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		last := ""
		at := ""
		if row.LastMessage != nil {
			last = truncateCell(row.LastMessage.Content, 48)
			at = row.LastMessage.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		table = append(table, []string{
			row.ID,
			row.Counterpart(userID),
			row.ProductName,
			strconv.Itoa(row.Unread),
			at,
			last,
		})
	}
	return writeTable(out, []string{"ID", "WITH", "PRODUCT", "UNREAD", "LAST", "MESSAGE"}, table)
}

func writeJSON(out io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return Exitf(ExitCodeFailure, "encode output: %v", err)
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
