package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	serveHTTPAddr string
	serveGRPCAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address (overrides http.addr)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "gRPC health listen address (overrides grpc.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control plane server",
	Long: "Runs the REST API with the live event stream, the gRPC health service\n" +
		"and the Prometheus endpoint. Alert targets hot-reload from the config file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveHTTPAddr != "" {
		a.Config.HTTP.Addr = serveHTTPAddr
	}
	if serveGRPCAddr != "" {
		a.Config.GRPC.Addr = serveGRPCAddr
	}

	fmt.Fprintf(os.Stderr, "probeplane listening on %s (http)", a.Config.HTTP.Addr)
	if a.Config.GRPC.Addr != "" {
		fmt.Fprintf(os.Stderr, ", %s (grpc health)", a.Config.GRPC.Addr)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Store: %s\n", a.Store.Driver())
	if a.Audit != nil {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", a.Audit.Path())
	}
	fmt.Fprintln(os.Stderr)

	err = a.Serve(ctx)
	fmt.Fprintln(os.Stderr, "\nShutting down probeplane...")
	return err
}
