package localfs

import (
	"errors"
	"flag"
	"path/filepath"

	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casregistry"
)

var flagDir string

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Directory of read-only object files",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "localfs-dir", "", "Object directory (for --backend=localfs)")
		},
		Open: func(opts casregistry.Options) (storage.CAS, func() error, error) {
			dir := opts.Value("localfs-dir", flagDir)
			if dir == "" {
				return nil, nil, errors.New("missing --localfs-dir")
			}
			cas, err := New(filepath.Clean(dir), opts.Provider)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
