package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gbdevw/gowsrelay/relayclient"
	"github.com/spf13/cobra"
)

var (
	sendFlags endpointFlags
	// Send through a websocket connection instead of POST
	sendRelay bool
)

var sendCmd = &cobra.Command{
	Use:   "send <recipient> [message]",
	Short: "Send a message to a peer",
	Long: `Send a message to the peer with the recipient id. The message is read from stdin when it
is omitted or when it is "-".

The message is sent with an HTTP POST request, or with a relay frame through a websocket
connection registered with --id when --relay is set.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipient, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid recipient %q: %w", args[0], err)
		}
		var payload []byte
		if len(args) == 1 || args[1] == "-" {
			if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}
		} else {
			payload = []byte(args[1])
		}
		logger, err := clientLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx := cmd.Context()
		endpoint := sendFlags.endpoint()
		if err := endpoint.Validate(); err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
		if !sendRelay {
			return relayclient.NewSender(endpoint.SendURL(), nil, logger, nil).Send(ctx, recipient, payload)
		}
		opts := relayclient.NewClientConfigurationOptions().WithAdapter(sendFlags.Adapter)
		client, err := relayclient.Connect(ctx, endpoint, opts, logger, nil, nil)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))
		return client.Relay(ctx, recipient, payload)
	},
}

func init() {
	sendFlags.bind(sendCmd)
	sendCmd.Flags().BoolVar(&sendRelay, "relay", false, "send through a websocket connection")
}
