package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/certstore"
	"xdao.co/signet/config"
	"xdao.co/signet/digest"
	"xdao.co/signet/hashable"
	"xdao.co/signet/identity"
	"xdao.co/signet/internal/log"
	"xdao.co/signet/seal"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/bundle"
	"xdao.co/signet/storage/casregistry"

	_ "xdao.co/signet/storage/grpccas"
	_ "xdao.co/signet/storage/ipfs"
	_ "xdao.co/signet/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "digest":
		return cmdDigest(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "identity":
		return cmdIdentity(args[1:], out, errOut)
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "signet: comparable, signable digests")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  signet digest [--provider <p>] [--format base64|base64url|hex|text|cid|oci|json] <file|->")
	fmt.Fprintln(w, "  signet sign --identity <name> [--provider <p>] <file|->")
	fmt.Fprintln(w, "  signet verify --digest <digest.json> (--identity <name> | --cert <cert.pem>) <file|->")
	fmt.Fprintln(w, "  signet identity import --name <name> (--pfx <file> | --cert <cert.pem> [--key <key.pem>]) [--force]")
	fmt.Fprintln(w, "  signet identity export --name <name> [--encrypt]")
	fmt.Fprintln(w, "  signet identity list")
	fmt.Fprintln(w, "  signet identity remove --name <name>")
	fmt.Fprintln(w, "  signet identity verify-chain --name <name> [--ca <ca.pem>] [--allow-unknown-ca]")
	fmt.Fprintln(w, "  signet store put|get|has|seal|open --backend <name> [backend flags] <file|cid>")
	fmt.Fprintln(w, "  signet store export --backend <name> [--out <bundle.tar>] [--follow-seals=false] [<cid> ...]")
	fmt.Fprintln(w, "  signet store import --backend <name> [--dry-run] <bundle.tar|->")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <file>        JSON config (provider, log, identity, storage)")
	fmt.Fprintln(w, "  --store <dir>          identity store directory (default ~/.signet/identities)")
	fmt.Fprintln(w, "  --password-env <VAR>   environment variable holding the identity password")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - providers: SHA-256 (default), SHA-384, SHA-512, SHA3-256, SHA3-512")
	fmt.Fprintln(w, "  - sign writes the signed digest as JSON to stdout")
	fmt.Fprintln(w, "  - verify exits 1 and prints the reason when verification fails")
	fmt.Fprintln(w, "  - store seal prints the record CID; store open re-verifies before writing the content")
}

// common holds the flags shared by commands that touch config and identities.
type common struct {
	configPath  string
	storeDir    string
	provider    string
	passwordEnv string
	logLevel    string
	logFormat   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "JSON config file")
	fs.StringVar(&c.storeDir, "store", "", "Identity store directory")
	fs.StringVar(&c.provider, "provider", "", "Digest provider")
	fs.StringVar(&c.passwordEnv, "password-env", "", "Environment variable holding the identity password")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, error, none")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: logfmt, json, term")
}

// resolve merges the config file with the flags. Flags win.
func (c *common) resolve() (config.Config, error) {
	var cfg config.Config
	if c.configPath != "" {
		var err error
		cfg, err = config.LoadFile(c.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if c.storeDir != "" {
		cfg.Identity.Dir = c.storeDir
	}
	if c.provider != "" {
		cfg.Provider = c.provider
	}
	if c.passwordEnv != "" {
		cfg.Identity.PasswordEnv = c.passwordEnv
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	return cfg, cfg.Validate()
}

func (c *common) setup(errOut io.Writer) (config.Config, digest.Provider, log.Logger, error) {
	cfg, err := c.resolve()
	if err != nil {
		return cfg, 0, nil, err
	}
	p, err := cfg.DigestProvider()
	if err != nil {
		return cfg, 0, nil, err
	}
	logger, err := cfg.NewLogger(errOut)
	if err != nil {
		return cfg, 0, nil, err
	}
	return cfg, p, logger, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func cmdDigest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	format := fs.String("format", "base64", "Output format: base64, base64url, hex, text, cid, oci, json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: signet digest [--provider <p>] [--format <f>] <file|->")
		return 2
	}
	_, p, logger, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	var h hashable.Hashable = hashable.NewFile(fs.Arg(0))
	if fs.Arg(0) == "-" {
		b, err := readInput("-")
		if err != nil {
			fmt.Fprintf(errOut, "read stdin: %v\n", err)
			return 1
		}
		h = hashable.NewBytes(b)
	}
	d, err := hashable.Compute(h, p, nil)
	if err != nil {
		fmt.Fprintf(errOut, "digest: %v\n", err)
		return 1
	}
	logger.Debug("computed digest", "provider", p, "bytes", sourceLen(d))

	text, err := formatDigest(d, *format)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	_, _ = fmt.Fprintln(out, text)
	return 0
}

func sourceLen(d *digest.Digest) int64 {
	n, _ := d.SourceByteLength()
	return n
}

func formatDigest(d *digest.Digest, format string) (string, error) {
	switch format {
	case "", "base64":
		return d.Base64(false, true), nil
	case "base64url":
		return d.Base64(true, false), nil
	case "hex":
		return d.Hex(), nil
	case "text":
		return d.String(), nil
	case "cid":
		id, err := d.CID()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	case "oci":
		od, err := d.OCI()
		if err != nil {
			return "", err
		}
		return od.String(), nil
	case "json":
		b, err := json.Marshal(d)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown --format %q", format)
	}
}

func loadIdentity(cfg config.Config, name string) (*identity.Identity, error) {
	if name == "" {
		name = cfg.Identity.Name
	}
	if name == "" {
		return nil, errors.New("no identity selected (use --identity or identity.name in config)")
	}
	s, err := cfg.Store()
	if err != nil {
		return nil, err
	}
	return s.Load(name, cfg.Password())
}

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	name := fs.String("identity", "", "Stored identity to sign with")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: signet sign --identity <name> [--provider <p>] <file|->")
		return 2
	}
	cfg, p, logger, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	id, err := loadIdentity(cfg, *name)
	if err != nil {
		fmt.Fprintf(errOut, "load identity: %v\n", err)
		return 1
	}
	if !id.HasPrivateKey() {
		fmt.Fprintf(errOut, "identity %s has no private key\n", id)
		return 1
	}
	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	d, err := digest.Compute(data, p, id)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	b, err := json.Marshal(d)
	if err != nil {
		fmt.Fprintf(errOut, "encode digest: %v\n", err)
		return 1
	}
	logger.Info("signed", "identity", id.SerialNumber(), "provider", p, "bytes", len(data))
	_, _ = fmt.Fprintln(out, string(b))
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	digestPath := fs.String("digest", "", "Digest JSON produced by sign or digest --format json")
	name := fs.String("identity", "", "Stored identity to verify against")
	certPath := fs.String("cert", "", "PEM certificate to verify against")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *digestPath == "" {
		fmt.Fprintln(errOut, "usage: signet verify --digest <digest.json> (--identity <name> | --cert <cert.pem>) <file|->")
		return 2
	}
	cfg, _, logger, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	raw, err := os.ReadFile(*digestPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --digest: %v\n", err)
		return 1
	}
	var d digest.Digest
	if err := json.Unmarshal(raw, &d); err != nil {
		fmt.Fprintf(errOut, "invalid digest: %v\n", err)
		return 1
	}

	var signer digest.Signer
	switch {
	case *certPath != "":
		pemBytes, err := os.ReadFile(*certPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --cert: %v\n", err)
			return 1
		}
		id, err := identity.LoadPEM(pemBytes, nil, "")
		if err != nil {
			fmt.Fprintf(errOut, "load certificate: %v\n", err)
			return 1
		}
		signer = id
	case *name != "" || (d.IsSigned() && cfg.Identity.Name != ""):
		id, err := loadIdentity(cfg, *name)
		if err != nil {
			fmt.Fprintf(errOut, "load identity: %v\n", err)
			return 1
		}
		public, err := id.RemovePrivateKey()
		if err != nil {
			fmt.Fprintf(errOut, "load identity: %v\n", err)
			return 1
		}
		signer = public
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	ok, reason := d.Verify(data, signer)
	if !ok {
		logger.Error("verification failed", "reason", reason)
		_, _ = fmt.Fprintf(out, "FAIL: %s\n", reason)
		return 1
	}
	if d.IsSigned() {
		_, _ = fmt.Fprintln(out, "OK (signed)")
	} else {
		_, _ = fmt.Fprintln(out, "OK")
	}
	return 0
}

func cmdIdentity(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: signet identity <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: import, export, list, remove, verify-chain")
		return 2
	}
	switch args[0] {
	case "import":
		return cmdIdentityImport(args[1:], out, errOut)
	case "export":
		return cmdIdentityExport(args[1:], out, errOut)
	case "list":
		return cmdIdentityList(args[1:], out, errOut)
	case "remove":
		return cmdIdentityRemove(args[1:], out, errOut)
	case "verify-chain":
		return cmdIdentityVerifyChain(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown identity subcommand: %s\n", args[0])
		return 2
	}
}

func cmdIdentityImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identity import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	name := fs.String("name", "", "Name to store the identity under")
	pfxPath := fs.String("pfx", "", "PKCS#12 file")
	certPath := fs.String("cert", "", "PEM certificate")
	keyPath := fs.String("key", "", "PEM private key")
	sourcePasswordEnv := fs.String("source-password-env", "", "Environment variable holding the PFX or key password")
	force := fs.Bool("force", false, "Overwrite an existing identity")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" || (*pfxPath == "") == (*certPath == "") {
		fmt.Fprintln(errOut, "usage: signet identity import --name <name> (--pfx <file> | --cert <cert.pem> [--key <key.pem>]) [--force]")
		return 2
	}
	cfg, _, logger, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	var sourcePassword string
	if *sourcePasswordEnv != "" {
		sourcePassword = os.Getenv(*sourcePasswordEnv)
	}

	var id *identity.Identity
	if *pfxPath != "" {
		b, err := os.ReadFile(*pfxPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --pfx: %v\n", err)
			return 1
		}
		id, err = identity.LoadPFX(b, sourcePassword)
		if err != nil {
			fmt.Fprintf(errOut, "load --pfx: %v\n", err)
			return 1
		}
	} else {
		certPEM, err := os.ReadFile(*certPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --cert: %v\n", err)
			return 1
		}
		var keyPEM []byte
		if *keyPath != "" {
			if keyPEM, err = os.ReadFile(*keyPath); err != nil {
				fmt.Fprintf(errOut, "read --key: %v\n", err)
				return 1
			}
		}
		id, err = identity.LoadPEM(certPEM, keyPEM, sourcePassword)
		if err != nil {
			fmt.Fprintf(errOut, "load PEM: %v\n", err)
			return 1
		}
	}

	s, err := cfg.Store()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	path, err := s.Save(*name, id, cfg.Password(), *force)
	if err != nil {
		fmt.Fprintf(errOut, "save identity: %v\n", err)
		return 1
	}
	logger.Info("imported identity", "name", *name, "serial", id.SerialNumber(), "path", path)
	_, _ = fmt.Fprintln(out, id.SerialNumber())
	return 0
}

func cmdIdentityExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identity export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	name := fs.String("name", "", "Stored identity")
	encrypt := fs.Bool("encrypt", false, "Emit a password protected envelope (uses --password-env)")
	public := fs.Bool("public", false, "Drop the private key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _, _, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	id, err := loadIdentity(cfg, *name)
	if err != nil {
		fmt.Fprintf(errOut, "load identity: %v\n", err)
		return 1
	}
	if *public {
		if id, err = id.RemovePrivateKey(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	env, err := id.Export(cfg.Password(), *encrypt)
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, string(b))
	return 0
}

func cmdIdentityList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identity list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _, _, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	s, err := cfg.Store()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	entries, err := s.List()
	if err != nil {
		fmt.Fprintf(errOut, "list identities: %v\n", err)
		return 1
	}
	for _, e := range entries {
		var flags []string
		if e.HasPrivateKey {
			flags = append(flags, "private-key")
		}
		if e.Encrypted {
			flags = append(flags, "encrypted")
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Serial, e.Provider, strings.Join(flags, ","), e.Subject)
	}
	return 0
}

func cmdIdentityRemove(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identity remove", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	name := fs.String("name", "", "Stored identity")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" {
		fmt.Fprintln(errOut, "usage: signet identity remove --name <name>")
		return 2
	}
	cfg, _, _, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	s, err := cfg.Store()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := s.Remove(*name); err != nil {
		if errors.Is(err, certstore.ErrNotFound) {
			fmt.Fprintf(errOut, "no identity named %s\n", *name)
			return 1
		}
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "removed %s\n", *name)
	return 0
}

func cmdIdentityVerifyChain(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identity verify-chain", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	name := fs.String("name", "", "Stored identity")
	caPath := fs.String("ca", "", "PEM certificate of the authority to pin")
	allowUnknown := fs.Bool("allow-unknown-ca", false, "Accept chains ending in an unknown authority")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _, _, err := c.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	id, err := loadIdentity(cfg, *name)
	if err != nil {
		fmt.Fprintf(errOut, "load identity: %v\n", err)
		return 1
	}
	opts := identity.ChainOptions{AllowUnknownCA: *allowUnknown}
	if *caPath != "" {
		b, err := os.ReadFile(*caPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --ca: %v\n", err)
			return 1
		}
		ca, err := identity.LoadPEM(b, nil, "")
		if err != nil {
			fmt.Fprintf(errOut, "load --ca: %v\n", err)
			return 1
		}
		opts.CustomCA = ca.Certificate()
	}
	ok, trail := identity.VerifyChain(id.Certificate(), opts)
	for _, line := range trail {
		_, _ = fmt.Fprintln(errOut, line)
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "FAIL")
		return 1
	}
	_, _ = fmt.Fprintln(out, "OK")
	return 0
}

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: signet store <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get, has, seal, open, export, import, backends")
		return 2
	}
	sub := args[0]
	if sub == "backends" {
		for _, b := range casregistry.List(casregistry.UsageCLI) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	switch sub {
	case "put", "get", "has", "seal", "open", "export", "import":
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n", sub)
		return 2
	}

	fs := flag.NewFlagSet("store "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.register(fs)
	backend := fs.String("backend", "", "CAS backend name (overrides storage in --config)")
	name := fs.String("identity", "", "Stored identity (seal signs with it, open verifies against it)")
	bundleOut := fs.String("out", "-", "Bundle file to write (export)")
	followSeals := fs.Bool("follow-seals", true, "Include the content of exported seal records (export)")
	dryRun := fs.Bool("dry-run", false, "Verify the bundle without storing anything (import)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 && sub != "export" {
		fmt.Fprintf(errOut, "usage: signet store %s --backend <name> [backend flags] <arg>\n", sub)
		return 2
	}
	cfg, p, logger, err := c.setup(errOut)
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
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageCLI, p)
	case cfg.Storage != nil:
		cas, closeFn, err = cfg.Storage.Open(casregistry.UsageCLI, "", p)
	default:
		err = errors.New("no storage configured (use --backend or storage in --config)")
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	arg := fs.Arg(0)
	switch sub {
	case "export":
		return storeExport(cas, fs.Args(), *bundleOut, *followSeals, out, errOut)
	case "import":
		return storeImport(cas, arg, *dryRun, logger, out, errOut)
	case "put":
		data, err := readInput(arg)
		if err != nil {
			fmt.Fprintf(errOut, "read input: %v\n", err)
			return 1
		}
		id, err := cas.Put(data)
		if err != nil {
			fmt.Fprintf(errOut, "put: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, id)
		return 0
	case "get", "has":
		id, err := cid.Decode(arg)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid: %v\n", err)
			return 2
		}
		if sub == "has" {
			if cas.Has(id) {
				_, _ = fmt.Fprintln(out, "true")
				return 0
			}
			_, _ = fmt.Fprintln(out, "false")
			return 1
		}
		b, err := cas.Get(id)
		if err != nil {
			fmt.Fprintf(errOut, "get: %v\n", err)
			return 1
		}
		_, _ = out.Write(b)
		return 0
	case "seal":
		sealer := &seal.Sealer{CAS: cas, Provider: p, Logger: logger}
		if *name != "" || cfg.Identity.Name != "" {
			id, err := loadIdentity(cfg, *name)
			if err != nil {
				fmt.Fprintf(errOut, "load identity: %v\n", err)
				return 1
			}
			sealer.Signer = id
		}
		var h hashable.Hashable = hashable.NewFile(arg)
		if arg == "-" {
			data, err := readInput(arg)
			if err != nil {
				fmt.Fprintf(errOut, "read input: %v\n", err)
				return 1
			}
			h = hashable.NewBytes(data)
		}
		recordID, _, err := sealer.Seal(h)
		if err != nil {
			fmt.Fprintf(errOut, "seal: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, recordID)
		return 0
	default: // open
		recordID, err := cid.Decode(arg)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid: %v\n", err)
			return 2
		}
		sealer := &seal.Sealer{CAS: cas, Provider: p, Logger: logger}
		var signer digest.Signer
		if *name != "" {
			id, err := loadIdentity(cfg, *name)
			if err != nil {
				fmt.Fprintf(errOut, "load identity: %v\n", err)
				return 1
			}
			signer = id
		}
		data, _, err := sealer.Open(recordID, signer)
		if err != nil {
			fmt.Fprintf(errOut, "open: %v\n", err)
			return 1
		}
		_, _ = out.Write(data)
		return 0
	}
}

func storeExport(cas storage.CAS, args []string, outPath string, followSeals bool, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		all, err := storage.List(cas)
		if err != nil {
			fmt.Fprintf(errOut, "export: %v\n", err)
			return 1
		}
		return writeBundle(cas, all, outPath, followSeals, out, errOut)
	}
	ids := make([]cid.Cid, 0, len(args))
	for _, a := range args {
		id, err := cid.Decode(a)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid %q: %v\n", a, err)
			return 2
		}
		ids = append(ids, id)
	}
	return writeBundle(cas, ids, outPath, followSeals, out, errOut)
}

func writeBundle(cas storage.CAS, ids []cid.Cid, outPath string, followSeals bool, out io.Writer, errOut io.Writer) int {
	w := out
	if outPath != "-" {
		f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			fmt.Fprintf(errOut, "open --out: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := bundle.Export(w, cas, ids, bundle.ExportOptions{IncludeIndex: true, FollowSeals: followSeals}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	return 0
}

func storeImport(cas storage.CAS, path string, dryRun bool, logger log.Logger, out io.Writer, errOut io.Writer) int {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(errOut, "open bundle: %v\n", err)
			return 1
		}
		defer f.Close()
		r = f
	}
	ids, err := bundle.ImportWithOptions(r, cas, bundle.ImportOptions{DryRun: dryRun})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(out, id)
	}
	logger.Info("imported bundle", "blocks", len(ids), "dry_run", dryRun)
	return 0
}
