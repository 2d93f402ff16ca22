package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ticket-marketplace/internal/storage"
)

// newMarketCommand adds maintenance subcommands. services are resolved lazily
// because they only exist after pocketbase has bootstrapped.
func newMarketCommand(resolve func() *services) *cobra.Command {
	command := &cobra.Command{
		Use:   "market",
		Short: "Inspect and maintain the marketplace data",
	}

	command.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete all marketplace keys so the next read seeds the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := resolve()
			if svc == nil {
				return errors.New("marketplace services are not initialized")
			}
			if err := svc.ns.Delete(cmd.Context(), storage.AllKeys...); err != nil {
				return fmt.Errorf("reset marketplace: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys under %q\n", len(storage.AllKeys), svc.cfg.KeyPrefix)
			return nil
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print ticket, transaction and ownership totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := resolve()
			if svc == nil {
				return errors.New("marketplace services are not initialized")
			}
			stats, err := svc.market.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	return command
}
