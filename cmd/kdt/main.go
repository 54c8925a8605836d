// Command kdt encrypts, decrypts, signs and verifies messages with hybrid
// post-quantum keys kept in a local key home.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kdtcrypt/kdt"
	"github.com/kdtcrypt/kdt/internal/config"
	"github.com/kdtcrypt/kdt/internal/report"
	"github.com/kdtcrypt/kdt/internal/storage"
)

// exitFunc is called by fatal; tests replace it.
var exitFunc = os.Exit

// passphraseSource resolves the configured passphrase source; tests
// replace it to avoid the OS keyring.
var passphraseSource = func(conf config.Config) (storage.PassphraseSource, error) {
	return conf.Passphrase()
}

// lockTimeout bounds how long an invocation waits for another kdt process
// to release the key home.
var lockTimeout = 10 * time.Second

// Config holds the process environment of one invocation.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

// DefaultConfig returns the Config of the running process.
func DefaultConfig() *Config {
	return &Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

// exitError carries a non-default exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf("%w: %s", kdt.ErrUsage, fmt.Sprintf(format, args...))}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

// errSilent marks a failure that has already been reported.
var errSilent = errors.New("already reported")

func fatal(stderr io.Writer, err error) {
	code := exitCode(err)
	if errors.Is(err, errSilent) {
		exitFunc(code)
		return
	}
	rep := report.New(stderr, report.WithExit(func(int) { exitFunc(code) }))
	rep.Fatal("%v", err)
}

type options struct {
	home       string
	configPath string
	quiet      bool
	action     *action
	arg        string
}

// parseArgs parses the command line. It returns flag.ErrHelp when help
// was requested.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	var opts options
	fs := flag.NewFlagSet("kdt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	fs.StringVar(&opts.home, "home", "", "key home directory")
	fs.StringVar(&opts.configPath, "config", "", "configuration file")
	fs.BoolVar(&opts.quiet, "q", false, "only report failures")
	fs.BoolVar(&opts.quiet, "quiet", false, "only report failures")

	values := make(map[*action]*string)
	flagAction := make(map[string]*action)
	for _, a := range actions {
		if a.takesID {
			v := new(string)
			values[a] = v
			for _, name := range a.names() {
				fs.StringVar(v, name, "", a.usage)
				flagAction[name] = a
			}
			continue
		}
		for _, name := range a.names() {
			fs.Bool(name, false, a.usage)
			flagAction[name] = a
		}
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &exitError{code: 2, err: fmt.Errorf("%w: %v", kdt.ErrUsage, err)}
	}
	if fs.NArg() > 0 {
		return nil, usageError("unexpected argument %q", fs.Arg(0))
	}

	chosen := make(map[string]*action)
	fs.Visit(func(f *flag.Flag) {
		if a, ok := flagAction[f.Name]; ok {
			if bf, isBool := f.Value.(interface{ IsBoolFlag() bool }); isBool && bf.IsBoolFlag() && f.Value.String() != "true" {
				return
			}
			chosen[a.long] = a
		}
	})
	switch len(chosen) {
	case 0:
		return nil, usageError("no action given; run `kdt -h` for a list of actions")
	case 1:
	default:
		return nil, usageError("only one action may be given at a time")
	}
	for _, a := range chosen {
		opts.action = a
		if v := values[a]; v != nil {
			opts.arg = *v
		}
	}
	return &opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: kdt [--home DIR] [--config FILE] [-q] ACTION")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "actions:")
	for _, a := range actions {
		flags := "--" + a.long
		if a.short != "" {
			flags = "-" + a.short + ", " + flags
		}
		if a.takesID {
			flags += " " + a.idName
		}
		fmt.Fprintf(w, "  %-34s %s\n", flags, a.usage)
	}
}

func run(args []string, cfg *Config) error {
	opts, err := parseArgs(args[1:], cfg.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.home != "" {
		base := getenv
		getenv = func(key string) string {
			if key == config.EnvHome {
				return opts.home
			}
			return base(key)
		}
	}

	conf, err := config.Load(opts.configPath, getenv)
	if err != nil {
		return err
	}
	if opts.quiet {
		conf.Quiet = true
	}

	env := &environment{
		stdin:  cfg.Stdin,
		stdout: cfg.Stdout,
		rep:    report.New(cfg.Stderr, report.WithQuiet(conf.Quiet)),
		conf:   conf,
		arg:    opts.arg,
	}

	return withStore(env, opts.action)
}

// withStore runs an action with the key home locked and the store
// loaded, saving the store afterwards when the action changed it.
func withStore(env *environment, a *action) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	lock, err := storage.AcquireLock(ctx, env.conf.Home)
	if err != nil {
		return err
	}
	defer lock.Release()

	src, err := passphraseSource(env.conf)
	if err != nil {
		return err
	}
	env.passphrase = src

	persister, closeFn, err := openPersister(env.conf, src)
	if err != nil {
		return err
	}
	defer closeFn()

	store, err := kdt.Load(persister)
	if err != nil {
		return err
	}
	env.store = store

	if err := a.run(env); err != nil {
		return err
	}
	if !a.mutates {
		return nil
	}
	return store.Save(persister)
}

func openPersister(conf config.Config, src storage.PassphraseSource) (kdt.Persister, func() error, error) {
	opts := conf.StorageOptions(src)

	switch strings.ToLower(conf.Backend) {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(filepath.Join(conf.Home, conf.DatabaseFile), opts...)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return storage.NewFileStore(conf.Home, opts...), func() error { return nil }, nil
	}
}
