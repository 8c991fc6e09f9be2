package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a location in the web UI",
		Long: `Open a location in the web UI configured by web.baseURL. Without --location
the stored location is opened.`,
		Args: cobra.NoArgs,
		RunE: c.runOpen,
	}
	cmd.Flags().String(flagLocation, "", "Location to open")
	return cmd
}

func (c *cli) runOpen(cmd *cobra.Command, _ []string) error {
	baseURL := c.cfg.WebBaseURL()
	if baseURL == "" {
		return fmt.Errorf("no web UI configured, set web.baseURL in the configuration file")
	}

	loc, _ := cmd.Flags().GetString(flagLocation)
	if loc == "" {
		store, err := newStore(c.cfg)
		if err != nil {
			return err
		}
		if loc, err = store.Load(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load stored location: %w", err)
		}
	}

	target := baseURL + "/" + c.codec().Encode(c.codec().Decode(loc))
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), target); err != nil {
		return err
	}
	if err := c.openURL(target); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
