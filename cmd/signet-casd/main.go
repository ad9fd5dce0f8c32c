package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/signet/config"
	"xdao.co/signet/digest"
	"xdao.co/signet/internal/log"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casregistry"
	"xdao.co/signet/storage/grpccas"

	_ "xdao.co/signet/storage/ipfs"
	_ "xdao.co/signet/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("signet-casd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "", "CAS backend name (overrides storage in --config; default localfs)")
	configPath := fs.String("config", "", "JSON config file")
	provider := fs.String("provider", "", "Digest provider CIDs are computed with")
	logLevel := fs.String("log-level", "", "Log level: debug, info, error, none")
	logFormat := fs.String("log-format", "", "Log format: logfmt, json, term")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsgBytes := fs.Int("max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	var cfg config.Config
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	logger, err := cfg.NewLogger(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	p, err := cfg.DigestProvider()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	var (
		cas     storage.CAS
		closeFn func() error
	)
	switch {
	case *backend != "":
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon, p)
	case cfg.Storage != nil:
		cas, closeFn, err = cfg.Storage.Open(casregistry.UsageDaemon, "", p)
	default:
		*backend = "localfs"
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon, p)
	}
	if err != nil {
		logger.Error("open backend", "err", err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", "addr", *listen, "err", err)
		return 1
	}
	return serve(ctx, lis, cas, p, *maxMsgBytes, logger)
}

// serve runs the CAS service on lis until ctx is done or Serve fails.
func serve(ctx context.Context, lis net.Listener, cas storage.CAS, p digest.Provider, maxMsgBytes int, logger log.Logger) int {
	var opts []grpc.ServerOption
	if maxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(maxMsgBytes), grpc.MaxSendMsgSize(maxMsgBytes))
	}
	s := grpc.NewServer(opts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, DigestProvider: p, Logger: logger.With("component", "grpccas")})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	logger.Info("listening", "addr", lis.Addr().String(), "provider", p)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		s.GracefulStop()
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error("serve", "err", err)
			return 1
		}
		return 0
	}
}
