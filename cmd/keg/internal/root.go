package internal

import (
	"fmt"
	"os"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/config"
	"github.com/maxgog/keg/internal/env"
	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/fetch"
	"github.com/maxgog/keg/internal/install"
	"github.com/maxgog/keg/internal/logger"
	"github.com/maxgog/keg/internal/store"
	"github.com/maxgog/keg/internal/tap"
)

// Version is the keg release, set with -ldflags at build time.
var Version = "dev"

var (
	configPath string
	rootDir    string
	debug      bool
)

// errReported is returned once a command has already reported its
// failures; it only sets the exit status.
const errReported = errors.Sentinel("one or more operations failed")

var rootCmd = &cobra.Command{
	Use:   "keg",
	Short: "keg installs software from source using formulae",
	Long: `keg installs software from source. A formula declares where the source
archive lives, its checksum, its dependencies and the commands that build,
install and test it. Installs live in <root>/Cellar/<name>/<version> and
their executables are linked into <root>/bin.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Configure(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $KEG_CONFIG or <user config dir>/keg/config.yml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "keg root directory (default $KEG_ROOT or ~/.keg)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			report(err)
		}
		os.Exit(1)
	}
}

// app is everything a command needs to operate on a keg root.
type app struct {
	cfg       *config.Configuration
	layout    env.Layout
	taps      *tap.Registry
	db        *store.Store
	installer *install.Installer
}

func loadConfig() (*config.Configuration, error) {
	path := configPath
	if path == "" {
		p, err := env.ConfigFile()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		if err := cfg.SetRoot(rootDir); err != nil {
			return nil, err
		}
	}
	if cfg.Debug && !debug {
		debug = true
		logger.Configure(true)
	}
	return cfg, nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	layout := cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return nil, errors.Wrap(err, "could not create keg directories")
	}
	taps, err := tap.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(layout.Database())
	if err != nil {
		return nil, err
	}
	in := install.New(layout, taps, db, fetch.New(layout.Downloads(), cfg.HTTPTimeout))
	in.KegVersion = Version
	log.WithFields(log.Fields{"root": layout.Root, "taps": len(taps.Taps())}).Debug("loaded configuration")
	return &app{cfg: cfg, layout: layout, taps: taps, db: db, installer: in}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.WithError(err).Debug("could not close database")
	}
}

// report prints an error with its structured detail. A failing step also
// gets the tail of its log.
func report(err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		log.WithError(err).Error("command failed")
		return
	}
	fields := log.Fields{}
	for k, v := range e.Fields() {
		if k != "tail" {
			fields[k] = v
		}
	}
	msg := e.Kind.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	entry := log.WithFields(fields)
	if debug {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
	if tail, _ := e.Field("tail").(string); tail != "" {
		fmt.Fprintf(os.Stderr, "%s\n", tail)
	}
}
