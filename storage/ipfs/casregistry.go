package ipfs

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casregistry"
)

var (
	flagBin     string
	flagRepo    string
	flagTimeout time.Duration
	flagPin     bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local IPFS repo through the Kubo CLI (offline raw blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS_PATH of the repo; empty uses the environment (for --backend=ipfs)")
			fs.DurationVar(&flagTimeout, "ipfs-timeout", 30*time.Second, "Per-command timeout; 0 disables (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", false, "Pin stored blocks (for --backend=ipfs)")
		},
		Open: func(opts casregistry.Options) (storage.CAS, func() error, error) {
			o := Options{Bin: opts.Value("ipfs-bin", flagBin), Provider: opts.Provider, Timeout: flagTimeout, Pin: flagPin}
			if repo := opts.Value("ipfs-path", flagRepo); repo != "" {
				o.Env = append(os.Environ(), "IPFS_PATH="+repo)
			}
			var err error
			if v, ok := opts.Config["ipfs-timeout"]; ok {
				if o.Timeout, err = time.ParseDuration(v); err != nil {
					return nil, nil, fmt.Errorf("ipfs-timeout: %w", err)
				}
			}
			if v, ok := opts.Config["ipfs-pin"]; ok {
				if o.Pin, err = strconv.ParseBool(v); err != nil {
					return nil, nil, fmt.Errorf("ipfs-pin: %w", err)
				}
			}
			cas, err := New(o)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
