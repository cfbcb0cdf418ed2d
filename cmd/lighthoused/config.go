package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "lighthoused.conf"
	defaultDataDirname     = "data"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "lighthoused.log"
	defaultNetwork         = "main"
	defaultListenAddr      = "localhost:8489"
	defaultMinPledgePeers  = 2
	defaultMaxLogFileSize  = 10
	defaultMaxLogFiles     = 3
	defaultProjectDirname  = "projects"
	defaultWalletDirname   = "wallet"
)

var defaultAppDataDir = btcutil.AppDataDir("lighthoused", false)

// config holds every lighthoused daemon setting, parsed first from an
// optional config file and then overridden by command-line flags, the
// same two-pass precedence lnd's own loadConfig applies.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	DataDir string `long:"datadir" description:"Directory to store wallet, chain, and pledge state"`
	LogDir  string `long:"logdir" description:"Directory to log output"`

	Network string `long:"network" description:"Network to run on: main, test, or regtest"`

	ListenAddr string `long:"listenaddr" description:"host:port the HTTP surface listens on"`
	TLSCert    string `long:"tlscertpath" description:"Path to the TLS certificate for non-localhost listening"`
	TLSKey     string `long:"tlskeypath" description:"Path to the TLS private key for non-localhost listening"`

	ProjectDir string `long:"projectdir" description:"Directory scanned and watched for .lighthouse-project files"`

	ConnectPeers []string `long:"connect" description:"SPV peer address to connect to (may be given multiple times)"`
	MinUTXOPeers int      `long:"minutxopeers" description:"Minimum number of peers that must agree before a pledge's UTXOs are trusted"`

	DebugLevel string `long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`

	WalletPass string `long:"walletpass" description:"Private passphrase unlocking the underlying wallet at startup"`
}

// defaultConfig returns a config with every lighthoused default filled in,
// mirroring lnd's loadConfig default-value block.
func defaultConfig() config {
	return config{
		ConfigFile:   filepath.Join(defaultAppDataDir, defaultConfigFilename),
		DataDir:      filepath.Join(defaultAppDataDir, defaultDataDirname),
		LogDir:       filepath.Join(defaultAppDataDir, defaultLogDirname),
		Network:      defaultNetwork,
		ListenAddr:   defaultListenAddr,
		ProjectDir:   filepath.Join(defaultAppDataDir, defaultProjectDirname),
		MinUTXOPeers: defaultMinPledgePeers,
		DebugLevel:   "info",
	}
}

// loadConfig parses the command line, reads the (optional) config file it
// names, and re-parses the command line over the result so that explicit
// flags always win -- the same order lnd's loadConfig uses so a flag can
// override a stale config file value.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	if preCfg.ConfigFile != cfg.ConfigFile {
		cfg.ConfigFile = preCfg.ConfigFile
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		fileParser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(fileParser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("lighthoused: parsing config file: %w", err)
		}
	}

	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.DataDir, cfg.LogDir, cfg.ProjectDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("lighthoused: creating %s: %w", dir, err)
		}
	}

	if cfg.MinUTXOPeers < 1 {
		return nil, fmt.Errorf("lighthoused: minutxopeers must be at least 1")
	}

	return &cfg, nil
}

// storeDir is the directory backend.OpenStore manages; it appends its own
// fixed database filename inside this directory.
func (c *config) storeDir() string {
	return filepath.Join(c.DataDir, "backend")
}

func (c *config) walletDir() string {
	return filepath.Join(c.DataDir, defaultWalletDirname)
}

func (c *config) logFilePath() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}
