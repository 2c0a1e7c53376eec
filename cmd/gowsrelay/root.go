package main

import (
	"fmt"
	"os"

	"github.com/gbdevw/gowsrelay/relayclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flags shared by all commands.
type globalFlags struct {
	// Log client activity on stderr
	Verbose bool
}

var global globalFlags

var rootCmd = &cobra.Command{
	Use:   "gowsrelay",
	Short: "Websocket relay server and client",
	Long: `gowsrelay relays binary messages between peers connected with websockets.

Run a relay server with "serve", receive the messages sent to a peer with "listen" and send
messages to a peer with "send".`,
	SilenceUsage: true,
}

// Execute the root command and exit with status 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "log client activity on stderr")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sendCmd)
}

// Logger used by client commands.
func clientLogger() (*zap.Logger, error) {
	if !global.Verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// Relay server endpoint flags of the client commands.
type endpointFlags struct {
	Host     string
	Port     uint16
	ID       uint64
	Auth     string
	Insecure bool
	Adapter  string
}

// Register the endpoint flags on the command.
func (flags *endpointFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flags.Host, "host", "localhost", "relay server host")
	cmd.Flags().Uint16Var(&flags.Port, "port", 4433, "relay server port")
	cmd.Flags().Uint64Var(&flags.ID, "id", 0, "peer id")
	cmd.Flags().StringVar(&flags.Auth, "auth", "", "credentials formatted as user or user:password")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "use ws and http instead of wss and https")
	cmd.Flags().StringVar(&flags.Adapter, "adapter", relayclient.AdapterNhooyr, "websocket library: nhooyr or gorilla")
}

// Return the endpoint described by the flags.
func (flags *endpointFlags) endpoint() relayclient.Endpoint {
	return relayclient.Endpoint{
		Host:     flags.Host,
		Port:     flags.Port,
		ID:       flags.ID,
		Auth:     flags.Auth,
		Insecure: flags.Insecure,
	}
}
