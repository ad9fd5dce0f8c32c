package grpccas

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casregistry"
)

var (
	flagTarget        string
	flagDialTimeout   time.Duration
	flagTimeout       time.Duration
	flagMaxMsgBytes   int
	flagCheckProvider bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "Remote CAS served by signet-casd",
		Usage:       casregistry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "signet-casd address host:port (for --backend=grpc)")
			fs.DurationVar(&flagDialTimeout, "grpc-dial-timeout", 5*time.Second, "Dial timeout (for --backend=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 0, "Per-call timeout; 0 disables (for --backend=grpc)")
			fs.IntVar(&flagMaxMsgBytes, "grpc-max-msg-bytes", 0, "Max message size in bytes, send and receive; 0 keeps the grpc default")
			fs.BoolVar(&flagCheckProvider, "grpc-check-provider", true, "Refuse a server that uses another digest provider (for --backend=grpc)")
		},
		Open: openBackend,
	})
}

func openBackend(opts casregistry.Options) (storage.CAS, func() error, error) {
	target := strings.TrimSpace(opts.Value("grpc-target", flagTarget))
	if target == "" {
		return nil, nil, fmt.Errorf("missing --grpc-target")
	}
	dialTimeout, err := durationOption(opts, "grpc-dial-timeout", flagDialTimeout)
	if err != nil {
		return nil, nil, err
	}
	timeout, err := durationOption(opts, "grpc-timeout", flagTimeout)
	if err != nil {
		return nil, nil, err
	}
	maxMsg := flagMaxMsgBytes
	if v, ok := opts.Config["grpc-max-msg-bytes"]; ok {
		if maxMsg, err = strconv.Atoi(v); err != nil {
			return nil, nil, fmt.Errorf("grpc-max-msg-bytes: %w", err)
		}
	}
	check := flagCheckProvider
	if v, ok := opts.Config["grpc-check-provider"]; ok {
		if check, err = strconv.ParseBool(v); err != nil {
			return nil, nil, fmt.Errorf("grpc-check-provider: %w", err)
		}
	}

	client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg, Provider: opts.Provider})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	if check {
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if dialTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		}
		err := client.CheckProvider(ctx)
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("grpccas: %s: %w", target, err)
		}
	}
	return client, client.Close, nil
}

func durationOption(opts casregistry.Options, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := opts.Config[key]
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
