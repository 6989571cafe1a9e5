package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Options holds the command line. Flags the user did not set leave the
// loaded configuration alone.
type Options struct {
	ConfigPath string
	Server     bool
	Client     bool
	Port       int
	Interface  string
	Protocol   string
	Codec      string
	Pipeline   string
	Retries    int
	AllOrNone  bool
	LogFile    string
	Metrics    string
}

func newRootCmd() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "txpipe (--server | --client) [items...]",
		Short: "Run transactional item pipelines over a request-reply channel",
		Long: `txpipe runs batches of items through a named pipeline. The server
executes one request at a time; under --all-or-none the first failing item
stops the batch and rolls back what was already done.

In client mode each argument is one item, parsed as JSON when it is valid
JSON and sent as a plain string otherwise.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if opts.Server {
				if len(args) > 0 {
					return usageError("server mode takes no items")
				}
				return runServer(cmd.Context(), cfg)
			}
			return runClient(cmd.Context(), cfg, opts.Pipeline, args, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.Server, "server", false, "run as server")
	f.BoolVar(&opts.Client, "client", false, "run as client")
	f.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	f.IntVar(&opts.Port, "port", 3333, "port to bind or connect to")
	f.StringVar(&opts.Interface, "interface", "127.0.0.1", "interface to bind or connect to")
	f.StringVar(&opts.Protocol, "protocol", "tcp", "transport: tcp, ws or mem")
	f.StringVar(&opts.Codec, "codec", "json", "wire codec: json or cbor")
	f.StringVar(&opts.Pipeline, "pipeline", "", "pipeline to run (client) or serve by default (server)")
	f.IntVar(&opts.Retries, "retries", 3, "attempts per item")
	f.BoolVar(&opts.AllOrNone, "all-or-none", false, "stop at the first failure and roll back")
	f.StringVar(&opts.LogFile, "log-file", "", "also write logs to this file")
	f.StringVar(&opts.Metrics, "metrics", "", "serve Prometheus metrics on this address")

	cmd.MarkFlagsOneRequired("server", "client")
	cmd.MarkFlagsMutuallyExclusive("server", "client")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
