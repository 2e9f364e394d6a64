package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/chatrelay/internal/config"
	"github.com/ashureev/chatrelay/internal/domain"
	"github.com/ashureev/chatrelay/internal/history"
)

func newHistoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the stored conversation context",
	}

	var windowOnly bool
	show := &cobra.Command{
		Use:   "show <chat-id> <user-id> | show <chat-id:user-id>",
		Short: "Print the stored records of one user in one chat as JSON",
		Long: `Print the stored records of one user in one chat as JSON.

Group chat ids are negative; put them after "--" so they are not read as flags.`,
		Example: `  chatrelay history show -- -1001234567890 42
  chatrelay history show --window -- -1001234567890:42`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			hs, err := c.openHistory()
			if err != nil {
				return err
			}
			var records []domain.Record
			if windowOnly {
				records, err = hs.Window(cmd.Context(), key)
			} else {
				records, err = hs.Records(cmd.Context(), key)
			}
			if err != nil {
				return err
			}
			if records == nil {
				records = []domain.Record{}
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	show.Flags().BoolVar(&windowOnly, "window", false, "print only the records that would be sent as context now")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print chat, user and record totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hs, err := c.openHistory()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hs.Stats())
		},
	}

	cmd.AddCommand(show, stats)
	return cmd
}

func (c *cli) openHistory() (*history.FileStore, error) {
	hc := config.LoadHistory(c.v)
	return history.NewFileStore(history.Options{
		Path:       hc.File,
		WindowSize: hc.MessageLimit,
		Expiration: hc.Expiration,
		MaxRecords: hc.MaxRecords,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func parseKey(args []string) (domain.ConversationKey, error) {
	raw := strings.Join(args, ":")
	if len(args) == 1 && !strings.Contains(raw, ":") {
		return domain.ConversationKey{}, fmt.Errorf("expected <chat-id> <user-id> or <chat-id:user-id>, got %q", raw)
	}
	return domain.ParseConversationKey(raw)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
