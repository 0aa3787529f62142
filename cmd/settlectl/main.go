// Command settlectl computes settlements from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/acme/settlement/internal/app"
	"github.com/acme/settlement/internal/cache"
	"github.com/acme/settlement/internal/config"
	"github.com/acme/settlement/internal/logging"
	"github.com/acme/settlement/internal/settlement"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Compute ACME merchant settlements",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log retries and upstream calls to stderr")

	load := func() (config.Config, *slog.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return config.Config{}, nil, err
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose {
			logger = logging.NewWithWriter(os.Stderr, cfg.Logging)
		}
		return cfg, logger, nil
	}
	build := func(ctx context.Context) (*settlement.Service, func(), error) {
		cfg, logger, err := load()
		if err != nil {
			return nil, nil, err
		}
		svc, closeFn := app.NewService(ctx, cfg, logger)
		return svc, closeFn, nil
	}
	openCache := func(ctx context.Context) (*cache.MerchantCache, func(), error) {
		cfg, logger, err := load()
		if err != nil {
			return nil, nil, err
		}
		return app.NewMerchantCache(ctx, cfg, logger)
	}

	rootCmd.AddCommand(computeCmd(build))
	rootCmd.AddCommand(healthCmd(build))
	rootCmd.AddCommand(merchantsCmd(build))
	rootCmd.AddCommand(cacheCmd(openCache))
	return rootCmd
}

type builder func(ctx context.Context) (*settlement.Service, func(), error)

func computeCmd(build builder) *cobra.Command {
	var req settlement.Request
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute one merchant's settlement for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.Compute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&req.MerchantID, "merchant", "m", "", "Merchant UUID")
	cmd.Flags().StringVarP(&req.Date, "date", "d", "", "Settlement date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&req.Timezone, "timezone", "z", "", "IANA zone for the settlement day (default UTC)")
	cmd.MarkFlagRequired("merchant")
	cmd.MarkFlagRequired("date")

	return cmd
}

func healthCmd(build builder) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the payments API answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := svc.Probe(ctx); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "acme_api: disconnected")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "acme_api: connected")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	return cmd
}

func merchantsCmd(build builder) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "List merchants known to the payments API",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			merchants, err := svc.ListMerchants(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), merchants)
			}
			for _, m := range merchants {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", m.ID, m.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

type cacheOpener func(ctx context.Context) (*cache.MerchantCache, func(), error)

func cacheCmd(open cacheOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the redis merchant cache",
	}
	cmd.AddCommand(cacheFlushCmd(open))
	return cmd
}

func cacheFlushCmd(open cacheOpener) *cobra.Command {
	var merchantID string
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Drop one merchant's cached record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			existed, err := c.Invalidate(cmd.Context(), merchantID)
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "flushed %s\n", merchantID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s not cached\n", merchantID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&merchantID, "merchant", "m", "", "Merchant UUID")
	cmd.MarkFlagRequired("merchant")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
