// Command cminer connects to a stratum pool and mines one of four
// currencies (ETH/Etchash, CKB/Eaglesong, BTC/double-SHA256,
// KAS/kHeavyHash) with a fixed pool of CPU worker threads.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/biluohc/cminer/internal/btc"
	"github.com/biluohc/cminer/internal/ckb"
	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/eth"
	"github.com/biluohc/cminer/internal/kas"
	"github.com/biluohc/cminer/internal/log"
	"github.com/biluohc/cminer/internal/miner"
)

var cfgLog = log.NewSubsystem(log.CFGR)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := log.InitLogRotator("cminer.log"); err != nil {
		fmt.Fprintln(os.Stderr, "log rotator:", err)
	}
	log.SetLevelAll(log.ParseLevel(cfg.LogLevel()))
	cfgLog.Infof("starting: pool=%s currency=%s workers=%d testnet=%v", cfg.PoolAddr(), cfg.Currency, cfg.Workers, cfg.Testnet)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		cfgLog.Warnf("received %s, shutting down", sig)
		miner.RequestExit()
	}()

	switch cfg.Currency {
	case config.CurrencyETH:
		receiver := make(chan miner.Frame, 64)
		state := eth.NewState(*cfg, receiver)
		miner.Run[eth.JobMsg](state, receiver, eth.NewWorker)
	case config.CurrencyCKB:
		receiver := make(chan miner.Frame, 64)
		state := ckb.NewState(*cfg, receiver)
		miner.Run[ckb.JobMsg](state, receiver, ckb.NewWorker)
	case config.CurrencyBTC:
		receiver := make(chan miner.Frame, 64)
		state := btc.NewState(*cfg, receiver)
		miner.Run[btc.JobMsg](state, receiver, btc.NewWorker)
	case config.CurrencyKAS:
		receiver := make(chan miner.Frame, 64)
		state := kas.NewState(*cfg, receiver)
		miner.Run[kas.JobMsg](state, receiver, kas.NewWorker)
	default:
		fmt.Fprintf(os.Stderr, "unknown currency %q\n", cfg.Currency)
		os.Exit(1)
	}
}
