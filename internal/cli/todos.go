package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"todogate/internal/model"
	"todogate/internal/ui"
)

func newListCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the todo list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, done, err := app.itemAPI(cmd)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			items, err := api.List(ctx)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	return cmd
}

func newAddCmd(app *App) *cobra.Command {
	var (
		asJSON bool
		done   bool
	)
	cmd := &cobra.Command{
		Use:   "add <description...>",
		Short: "Create a todo, then print the refreshed list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, closeLog, err := app.itemAPI(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := app.requestContext(cmd.Context())
			defer cancel()
			in := model.CreateItemInput{Status: strings.Join(args, " "), IsDone: done}
			if _, err := api.Create(ctx, in); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			items, err := api.List(ctx)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	cmd.Flags().BoolVar(&done, "done", false, "Create the todo already checked off")
	return cmd
}

// itemAPI waits for the client provider of the stored session, the same way
// the list view does, and returns the settled handle.
func (app *App) itemAPI(cmd *cobra.Command) (ui.ItemAPI, func(), error) {
	sess, err := app.session()
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := openLog(app.cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	clients := newClients(app.cfg, sess, logger)
	api, err := clients.Wait(cmd.Context())
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return api, closeLog, nil
}

func printItems(w io.Writer, items []model.Item, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No todos yet.")
		return err
	}
	for _, it := range items {
		box := "[ ]"
		if it.IsDone {
			box = "[x]"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", box, it.Status); err != nil {
			return err
		}
	}
	return nil
}
