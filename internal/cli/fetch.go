package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/chanwidget/internal/apierr"
	"github.com/bryan-buckman/chanwidget/internal/config"
	"github.com/bryan-buckman/chanwidget/internal/database"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <channel>",
	Short: "Fetch the recent posts of one channel and print them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchAction,
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List the configured widget channels and the allow-list",
	Args:  cobra.NoArgs,
	RunE:  channelsAction,
}

func init() {
	rootCmd.AddCommand(fetchCmd, channelsCmd)
}

func fetchAction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := database.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if archive != nil {
		defer archive.Close()
	}

	f, err := newFetcher(cfg, archive)
	if err != nil {
		return err
	}
	msgs, err := f.Fetch(cmdContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("%s (HTTP %d): %w", apierr.PublicMessage(err), apierr.StatusOf(err), err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(msgs)
}

func channelsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printChannels(cmd.OutOrStdout(), cfg)
}

func printChannels(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tCONTAINER")
	for _, ch := range cfg.Widget.Channels {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Username, ch.Name, ch.Container)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nAllow-list (%s strategy): %v\n", cfg.Fetcher.Strategy, cfg.Fetcher.AllowList)
	return err
}
