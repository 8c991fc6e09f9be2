package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/itembrowser/internal/browse"
)

// intentOutput is the JSON form of a decoded location
type intentOutput struct {
	Cursor string `json:"cursor"`
	Search string `json:"search"`
	Group  string `json:"group"`
}

func (c *cli) newLocationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Encode and decode location strings",
	}

	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the location of a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			intent, _ := intentFromFlags(cmd)
			if err := checkGroup(c.codec(), intent.Group); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), c.codec().Encode(intent))
			return err
		},
	}
	encodeCmd.Flags().String("cursor", "", "Page cursor")
	encodeCmd.Flags().String("search", "", "Search term")
	encodeCmd.Flags().String("group", "", "Group filter")

	decodeCmd := &cobra.Command{
		Use:   "decode <location>",
		Short: "Print the page a location refers to",
		Long: `Print the page a location refers to as JSON. The location may be a query
string or a full URL; unknown parameters and groups are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := c.codec().Decode(args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(intentOutput{Cursor: intent.Cursor, Search: intent.Search, Group: intent.Group})
		},
	}

	cmd.AddCommand(encodeCmd, decodeCmd)
	return cmd
}

func (c *cli) codec() *browse.Codec {
	return browse.NewCodec(c.cfg.Groups...)
}
