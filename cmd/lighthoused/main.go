package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/lightninglabs/neutrino"
	"github.com/vinumeris/lighthouse/backend"
	"github.com/vinumeris/lighthouse/httpapi"
	"github.com/vinumeris/lighthouse/pledgewallet"
	"github.com/vinumeris/lighthouse/projectindex"
	"github.com/vinumeris/lighthouse/utxooracle"
)

// cfg is package-global the same way lnd.go keeps its loaded config
// reachable from every subsystem wiring step in lndMain.
var cfg *config

func networkParams(token string) (*chaincfg.Params, error) {
	switch token {
	case "main":
		return &chaincfg.MainNetParams, nil
	case "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("lighthoused: unknown network %q", token)
	}
}

// lighthoudMain is the true entry point: it runs inside main so that
// deferred cleanups fire even when a setup step below returns an error,
// the same reason lnd.go wraps its own body in lndMain rather than
// main itself.
func lighthoudMain() error {
	loadedCfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loadedCfg

	if err := initLogRotator(cfg.logFilePath(), defaultMaxLogFileSize, defaultMaxLogFiles); err != nil {
		return err
	}
	defer flushLog()
	if err := initLogging(cfg.DebugLevel); err != nil {
		return err
	}

	params, err := networkParams(cfg.Network)
	if err != nil {
		return err
	}

	db, err := walletdb.Create("bdb", cfg.walletDir()+"/wallet.db", true, 60*time.Second)
	if err != nil {
		return fmt.Errorf("lighthoused: opening wallet database: %w", err)
	}
	defer db.Close()

	baseWallet, err := wallet.Open(db, []byte("public"), nil, params, 0)
	if err != nil {
		return fmt.Errorf("lighthoused: opening wallet: %w", err)
	}
	if err := baseWallet.Unlock([]byte(cfg.WalletPass), nil); err != nil {
		return fmt.Errorf("lighthoused: unlocking wallet: %w", err)
	}
	baseWallet.Start()
	defer baseWallet.Stop()

	neutrinoDB, err := walletdb.Create("bdb", cfg.DataDir+"/neutrino.db", true, 60*time.Second)
	if err != nil {
		return fmt.Errorf("lighthoused: opening neutrino database: %w", err)
	}
	defer neutrinoDB.Close()

	chainService, err := neutrino.NewChainService(neutrino.Config{
		DataDir:      cfg.DataDir,
		Database:     neutrinoDB,
		ChainParams:  *params,
		ConnectPeers: cfg.ConnectPeers,
	})
	if err != nil {
		return fmt.Errorf("lighthoused: creating neutrino chain service: %w", err)
	}
	if err := chainService.Start(); err != nil {
		return fmt.Errorf("lighthoused: starting neutrino chain service: %w", err)
	}
	defer chainService.Stop()

	pw := pledgewallet.New(baseWallet)
	if err := pw.Start(); err != nil {
		return fmt.Errorf("lighthoused: starting pledging wallet: %w", err)
	}
	defer pw.Stop()

	store, err := backend.OpenStore(cfg.storeDir())
	if err != nil {
		return fmt.Errorf("lighthoused: opening backend store: %w", err)
	}
	defer store.Close()

	peers := []utxooracle.Peer{newNeutrinoPeer("neutrino-0", params, chainService)}
	if cfg.MinUTXOPeers > len(peers) {
		return fmt.Errorf("lighthoused: configured minutxopeers=%d but only %d peer(s) wired",
			cfg.MinUTXOPeers, len(peers))
	}

	coordinator, err := backend.NewPeerCoordinator(store, peers)
	if err != nil {
		return fmt.Errorf("lighthoused: building coordinator: %w", err)
	}
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("lighthoused: starting coordinator: %w", err)
	}
	defer coordinator.Stop()

	index := projectindex.New(cfg.ProjectDir)
	if err := index.Scan(); err != nil {
		return fmt.Errorf("lighthoused: scanning project directory: %w", err)
	}
	if err := index.Watch(); err != nil {
		return fmt.Errorf("lighthoused: watching project directory: %w", err)
	}
	defer index.Close()

	ctx := context.Background()
	for _, id := range index.Ids.Snapshot() {
		proj, ok := index.Lookup(id)
		if !ok {
			continue
		}
		if err := coordinator.TrackProject(ctx, proj); err != nil {
			return fmt.Errorf("lighthoused: tracking project %v: %w", id, err)
		}
	}

	server := &httpapi.Server{Coordinator: coordinator, Index: index}

	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("lighthoused: invalid listenaddr %q: %w", cfg.ListenAddr, err)
	}

	// ListenAndServe itself ignores cert when host is localhost/loopback,
	// so the certificate is only ever generated/loaded when it will
	// actually be used.
	var tlsCert tls.Certificate
	ip := net.ParseIP(host)
	if !(host == "localhost" || (ip != nil && ip.IsLoopback())) {
		tlsCert, err = httpapi.LoadOrCreateTLSCert(cfg.TLSCert, cfg.TLSKey, nil, nil)
		if err != nil {
			return fmt.Errorf("lighthoused: loading TLS certificate: %w", err)
		}
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- httpapi.ListenAndServe(cfg.ListenAddr, server, tlsCert)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-interrupt:
		return nil
	case err := <-serveErrCh:
		return err
	}
}

func main() {
	if err := lighthoudMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
