package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gbdevw/gowsrelay/relayclient"
	"github.com/gbdevw/gowsrelay/wsstream"
	"github.com/spf13/cobra"
)

var listenFlags endpointFlags

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect as a peer and print the messages it receives",
	Long: `Connect as a peer and print each received message on its own line until the connection
closes or until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := clientLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		opts := relayclient.NewClientConfigurationOptions().WithAdapter(listenFlags.Adapter)
		client, err := relayclient.Connect(ctx, listenFlags.endpoint(), opts, logger, nil, nil)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))
		out := cmd.OutOrStdout()
		for msg, err := range client.All(ctx) {
			if err != nil {
				switch {
				case ctx.Err() != nil:
					return nil
				case errors.Is(err, wsstream.ErrClosed):
					// Closed between two messages: report the failure, if any
					return client.Err()
				}
				return err
			}
			fmt.Fprintf(out, "%s\n", msg.Data)
		}
		return nil
	},
}

func init() {
	listenFlags.bind(listenCmd)
}
