package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/store"
	"github.com/buildersguild/sentinel/internal/store/sqlite"
)

func flaggedCmd() *cobra.Command {
	var author, channel, guild string

	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List flagged messages from the outcome store",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}

			s, err := sqlite.Open(config.ExpandHome(cfg.Store.Path))
			if err != nil {
				fmt.Fprintf(os.Stderr, "open store: %v\n", err)
				os.Exit(1)
			}
			defer s.Close()

			records, err := s.List(context.Background(), store.QueryFilter{
				AuthorID:  author,
				ChannelID: channel,
				GuildID:   guild,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "list flagged messages: %v\n", err)
				os.Exit(1)
			}

			if len(records) == 0 {
				fmt.Println("No flagged messages.")
				return
			}
			for _, rec := range records {
				fmt.Printf("%s  [%s]  %s: %s\n",
					rec.FlaggedAt.Format("2006-01-02 15:04"), rec.Confidence,
					rec.AuthorName, rec.Content)
				if rec.JumpURL != "" {
					fmt.Printf("    %s\n", rec.JumpURL)
				}
				if rec.Reason != "" {
					fmt.Printf("    reason: %s\n", rec.Reason)
				}
			}
			fmt.Printf("\n%d flagged message(s)\n", len(records))
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "filter by author ID")
	cmd.Flags().StringVar(&channel, "channel", "", "filter by channel ID")
	cmd.Flags().StringVar(&guild, "guild", "", "filter by guild ID")
	return cmd
}
