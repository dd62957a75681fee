// This program performs administrative tasks against the stored chain of a
// node that is not running.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/utxochain/app/tooling/admin/commands"
	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage"
	"github.com/ardanlabs/utxochain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("startup", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args  conf.Args
		State struct {
			Storage     string `conf:"default:leveldb"`
			DBPath      string `conf:"default:zblock/miner1/blocks"`
			GenesisFile string `conf:"default:zblock/genesis.json"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "utxochain admin tooling",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.State.GenesisFile)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	strg, err := storage.Open(cfg.State.Storage, cfg.State.DBPath, ev)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}
	defer strg.Close()

	chn, err := chain.New(chain.Config{
		Storage:   strg,
		Genesis:   gen,
		EvHandler: ev,
	})
	if err != nil {
		return fmt.Errorf("unable to load chain: %w", err)
	}

	return processCommands(cfg.Args, chn)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, chn *chain.Chain) error {
	switch args.Num(0) {
	case "status":
		commands.Status(chn)

	case "bals":
		if err := commands.Balances(args.Num(1), chn); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	case "blocks":
		if err := commands.Blocks(args.Num(1), args.Num(2), chn); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}

	case "checkpoints":
		commands.Checkpoints(chn)

	case "checkpoint":
		if err := commands.AddCheckpoint(args.Num(1), chn); err != nil {
			return fmt.Errorf("adding checkpoint: %w", err)
		}

	default:
		fmt.Println("status:      show the chain tip and supply")
		fmt.Println("bals:        show the balance and outputs of a fingerprint")
		fmt.Println("blocks:      show the main chain blocks between two heights")
		fmt.Println("checkpoints: list the checkpoints")
		fmt.Println("checkpoint:  record the main chain block at a height as a checkpoint")
		return commands.ErrHelp
	}

	return nil
}
