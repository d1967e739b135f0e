package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/content"
	"github.com/Noha9900/advance-filestorebot/internal/domain"
	"github.com/Noha9900/advance-filestorebot/internal/platform/telegram"
	"github.com/Noha9900/advance-filestorebot/internal/store"
	"github.com/spf13/cobra"
)

var (
	mintChat    int64
	mintStart   int
	mintEnd     int
	mintCaption string
	mintBotName string
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Store a message or message range and print its share link",
	Example: `  filestorebot mint --chat -1001234567890 --start 42
  filestorebot mint --chat -1001234567890 --start 10 --end 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		nc := content.NewContent{
			Kind:       domain.ContentSingle,
			SourceChat: mintChat,
			StartMsg:   mintStart,
			Caption:    mintCaption,
			CreatedBy:  cfg.AdminID,
		}
		if mintEnd != 0 {
			nc.Kind = domain.ContentBatch
			nc.EndMsg = mintEnd
			nc.Caption = ""
		}

		botName := mintBotName
		if botName == "" {
			client, err := telegram.New(cfg.BotToken, cfg.RequestTimeout, logger)
			if err != nil {
				return err
			}
			botName = client.Username()
		}

		repo, err := store.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		defer repo.Close()

		d, err := content.NewStore(repo, nil, nil).Create(ctx, nc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), content.Link(botName, d.Token))
		return nil
	},
}

func init() {
	mintCmd.Flags().Int64Var(&mintChat, "chat", 0, "source chat id")
	mintCmd.Flags().IntVar(&mintStart, "start", 0, "message id, or first id of a range")
	mintCmd.Flags().IntVar(&mintEnd, "end", 0, "last message id of a range")
	mintCmd.Flags().StringVar(&mintCaption, "caption", "", "caption override for a single message")
	mintCmd.Flags().StringVar(&mintBotName, "bot", "", "bot username (looked up with the token when empty)")
	_ = mintCmd.MarkFlagRequired("chat")
	_ = mintCmd.MarkFlagRequired("start")
}
