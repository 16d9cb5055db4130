package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch one token from the authority and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if timeout <= 0 {
				timeout = a.cfg.HTTP.TokenWait
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			token, err := a.provider.Token(ctx)
			if err != nil {
				return fmt.Errorf("get token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for a token (defaults to HTTP_TOKEN_WAIT)")

	return cmd
}
