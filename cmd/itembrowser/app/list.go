package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/itembrowser/internal/browse"
	"github.com/stacklok/itembrowser/internal/items"
)

// pageOutput is the JSON form of a listed page
type pageOutput struct {
	Location string         `json:"location"`
	Records  []items.Record `json:"records"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
}

func (c *cli) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of items",
		Long: `Print one page of items and the locations of the neighbouring pages.

The page is chosen by --location, or by --cursor, --search and --group.
Without any of them the stored location is used.`,
		Args: cobra.NoArgs,
		RunE: c.runList,
	}
	cmd.Flags().String(flagLocation, "", "Location to list")
	cmd.Flags().String("cursor", "", "Page cursor")
	cmd.Flags().String("search", "", "Search term")
	cmd.Flags().String("group", "", "Group filter")
	cmd.Flags().String(flagFormat, formatTable, "Output format (table or json)")
	cmd.MarkFlagsMutuallyExclusive(flagLocation, "cursor")
	cmd.MarkFlagsMutuallyExclusive(flagLocation, "search")
	cmd.MarkFlagsMutuallyExclusive(flagLocation, "group")
	return cmd
}

func (c *cli) runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString(flagFormat)
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("unsupported format %q, use table or json", format)
	}
	intent, fromFlags := intentFromFlags(cmd)
	if err := checkGroup(c.codec(), intent.Group); err != nil {
		return err
	}

	sess, err := newSession(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if fromFlags {
		sess.ctrl.SetIntent(intent)
	} else {
		loc, _ := cmd.Flags().GetString(flagLocation)
		sess.ctrl.Start(loc)
	}

	snap, err := sess.settle(ctx)
	if err != nil {
		return err
	}

	out := pageOutput{
		Location: sess.ctrl.Location(),
		Records:  snap.Page.Records,
		Next:     neighbour(sess.ctrl, snap, snap.Page.NextCursor),
		Previous: neighbour(sess.ctrl, snap, snap.Page.PrevCursor),
	}
	if out.Records == nil {
		out.Records = []items.Record{}
	}

	if format == formatJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printPage(cmd.OutOrStdout(), out)
}

// intentFromFlags builds an intent when any of the cursor, search or group
// flags is set
func intentFromFlags(cmd *cobra.Command) (browse.Intent, bool) {
	flags := cmd.Flags()
	if !flags.Changed("cursor") && !flags.Changed("search") && !flags.Changed("group") {
		return browse.Intent{}, false
	}
	cursor, _ := flags.GetString("cursor")
	search, _ := flags.GetString("search")
	group, _ := flags.GetString("group")
	return browse.Intent{Cursor: cursor, Search: search, Group: group}, true
}

// checkGroup rejects a group filter the location codec would drop
func checkGroup(codec *browse.Codec, group string) error {
	if codec.Allows(group) {
		return nil
	}
	return fmt.Errorf("unknown group %q, use one of: %s", group, strings.Join(codec.Groups(), ", "))
}

// neighbour returns the location of the page at cursor, nil when there is none
func neighbour(ctrl *browse.Controller, snap browse.Snapshot, cursor string) *string {
	if cursor == "" {
		return nil
	}
	loc := ctrl.LocationOf(snap.PageIntent.WithCursor(cursor))
	return &loc
}

func printPage(w io.Writer, page pageOutput) error {
	if len(page.Records) == 0 {
		if _, err := fmt.Fprintln(w, "No items found."); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("ID", "Name", "Group")
		for _, r := range page.Records {
			if err := table.Append([]string{r.ID.String(), r.Name, r.Group}); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}

	_, err := fmt.Fprintf(w, "location: %s\n", displayLocation(page.Location))
	if err != nil {
		return err
	}
	if page.Previous != nil {
		if _, err := fmt.Fprintf(w, "previous: %s\n", displayLocation(*page.Previous)); err != nil {
			return err
		}
	}
	if page.Next != nil {
		if _, err := fmt.Fprintf(w, "next:     %s\n", displayLocation(*page.Next)); err != nil {
			return err
		}
	}
	return nil
}

// displayLocation shows the empty home location as "?"
func displayLocation(loc string) string {
	if loc == "" {
		return "?"
	}
	return loc
}
