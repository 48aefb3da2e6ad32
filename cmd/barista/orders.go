package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
)

func newOrdersCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List saved orders",
		Long:  "List the orders recorded by the configured store, oldest first. The store is only read.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			orders, err := readOrders(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), orders)
			}
			return printTable(cmd.OutOrStdout(), orders)
		},
	}
	cmd.Flags().Bool("json", false, "Print one JSON record per line")
	return cmd
}

func readOrders(ctx context.Context, cfg orderstore.Config) ([]order.ConfirmedOrder, error) {
	switch cfg.Backend {
	case "", orderstore.BackendFile:
		return orderstore.ReadFile(cfg.Path)
	case orderstore.BackendRedis:
		store, err := orderstore.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		reader, ok := store.(interface {
			ReadAll(context.Context) ([]order.ConfirmedOrder, error)
		})
		if !ok {
			return nil, fmt.Errorf("store %s cannot list orders", store.Backend())
		}
		return reader.ReadAll(ctx)
	default:
		return nil, fmt.Errorf("store backend %q keeps no orders to list", cfg.Backend)
	}
}

func printJSON(w io.Writer, orders []order.ConfirmedOrder) error {
	enc := json.NewEncoder(w)
	for _, o := range orders {
		if err := enc.Encode(o); err != nil {
			return err
		}
	}
	return nil
}

func printTable(w io.Writer, orders []order.ConfirmedOrder) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "no orders")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tNAME\tDRINK\tSIZE\tMILK\tEXTRAS")
	for i, o := range orders {
		extras := strings.Join(o.Extras, ", ")
		if extras == "" {
			extras = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, o.Name, o.DrinkType, o.Size, o.Milk, extras)
	}
	return tw.Flush()
}
