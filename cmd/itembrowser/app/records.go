package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacklok/itembrowser/internal/items"
)

func (c *cli) newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the details of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString(flagFormat)

			sess, err := newSession(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			record, err := sess.ctrl.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if format == formatJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			}
			return printRecord(cmd.OutOrStdout(), record)
		},
	}
	cmd.Flags().String(flagFormat, formatTable, "Output format (table or json)")
	return cmd
}

func (c *cli) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item and show the first page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			name, _ := cmd.Flags().GetString("name")
			group, _ := cmd.Flags().GetString("group")
			if group == "" && len(c.cfg.Groups) > 0 {
				group = c.cfg.Groups[0]
			}

			sess, err := newSession(ctx, c.cfg, withNotices(cmd))
			if err != nil {
				return err
			}
			defer sess.Close()

			record, err := sess.ctrl.Create(ctx, items.Input{Name: name, Group: group})
			if err != nil {
				return fmt.Errorf("failed to create item: %s: %w", items.FormMessage(err), err)
			}
			if _, err := sess.settle(ctx); err != nil {
				return err
			}
			return printMutation(cmd.OutOrStdout(), record, sess.ctrl.Location())
		},
	}
	cmd.Flags().String("name", "", "Item name")
	cmd.Flags().String("group", "", "Item group (default: the first configured group)")
	return cmd
}

func (c *cli) newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the name or group of an item",
		Long: `Update the name or group of an item. Fields that are not given keep their
current value. The page at --location (default: the stored location) is
refetched afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("group") {
				return fmt.Errorf("nothing to update, set --name or --group")
			}
			loc, _ := flags.GetString(flagLocation)

			sess, err := newSession(ctx, c.cfg, withNotices(cmd))
			if err != nil {
				return err
			}
			defer sess.Close()

			current, err := sess.ctrl.Get(ctx, id)
			if err != nil {
				return err
			}
			input := items.Input{Name: current.Name, Group: current.Group}
			if flags.Changed("name") {
				input.Name, _ = flags.GetString("name")
			}
			if flags.Changed("group") {
				input.Group, _ = flags.GetString("group")
			}

			sess.ctrl.Start(loc)
			if _, err := sess.settle(ctx); err != nil {
				return err
			}

			record, err := sess.ctrl.Update(ctx, id, input)
			if err != nil {
				return fmt.Errorf("failed to update item: %s: %w", items.FormMessage(err), err)
			}
			if _, err := sess.settle(ctx); err != nil {
				return err
			}
			return printMutation(cmd.OutOrStdout(), record, sess.ctrl.Location())
		},
	}
	cmd.Flags().String("name", "", "New item name")
	cmd.Flags().String("group", "", "New item group")
	cmd.Flags().String(flagLocation, "", "Location being viewed")
	return cmd
}

func (c *cli) newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item",
		Long: `Delete an item viewed at --location (default: the stored location).

When the item was the last one on its page and a previous page exists, the
resulting location moves back one page; otherwise the page is refetched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			loc, _ := cmd.Flags().GetString(flagLocation)

			sess, err := newSession(ctx, c.cfg, withNotices(cmd))
			if err != nil {
				return err
			}
			defer sess.Close()

			sess.ctrl.Start(loc)
			if _, err := sess.settle(ctx); err != nil {
				return err
			}
			if err := sess.ctrl.Delete(ctx, id); err != nil {
				return err
			}
			if _, err := sess.settle(ctx); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "location: %s\n", displayLocation(sess.ctrl.Location()))
			return err
		},
	}
	cmd.Flags().String(flagLocation, "", "Location being viewed")
	return cmd
}

func parseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid item id %q: %w", value, err)
	}
	return id, nil
}

func printRecord(w io.Writer, r *items.Record) error {
	_, err := fmt.Fprintf(w, "ID:           %s\nName:         %s\nGroup:        %s\nCreated At:   %s\nLast Updated: %s\n",
		r.ID, r.Name, r.Group, formatTimestamp(r.CreatedAt), formatTimestamp(r.UpdatedAt))
	return err
}

func printMutation(w io.Writer, r *items.Record, loc string) error {
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Name, r.Group); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "location: %s\n", displayLocation(loc))
	return err
}
