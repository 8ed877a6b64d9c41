// Command blockparser scans an on-disk blk*.dat corpus, reconstructs the
// canonical chain, and streams decoded blocks in height order into the
// consumer selected by the subcommand.
//
// Usage: blockparser [options] <csvdump|unspentcsvdump|balances|simplestats|opreturn>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/chainindex"
	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/consumer"
	"github.com/blockparser/blockparser/internal/csvconsumer"
	"github.com/blockparser/blockparser/internal/metrics"
	"github.com/blockparser/blockparser/internal/pipeline"
	"github.com/blockparser/blockparser/internal/statsconsumer"
	"github.com/blockparser/blockparser/internal/statusserver"
	"github.com/blockparser/blockparser/internal/utxoconsumer"
	chrepo "github.com/blockparser/blockparser/internal/utxoconsumer/clickhouse"
)

type config struct {
	BlockchainDir  string  `long:"blockchain-dir" env:"BLOCKPARSER_BLOCKCHAIN_DIR" description:"directory containing blk*.dat files (default: the coin's node directory)"`
	Coin           string  `long:"coin" env:"BLOCKPARSER_COIN" default:"BTC" description:"coin ticker (BTC, LTC, RVN)"`
	Network        string  `long:"network" env:"BLOCKPARSER_NETWORK" default:"mainnet" description:"network name (mainnet, testnet)"`
	ChainstatePath string  `long:"chainstate-path" env:"BLOCKPARSER_CHAINSTATE_PATH" default:"chain.json" description:"path of the persisted chain index"`
	OutputDir      string  `long:"output-dir" env:"BLOCKPARSER_OUTPUT_DIR" default:"." description:"directory consumer output is written to"`
	Start          uint64  `long:"start" env:"BLOCKPARSER_START" default:"0" description:"first block height to deliver"`
	End            *uint64 `long:"end" env:"BLOCKPARSER_END" description:"last block height to deliver (default: chain tip)"`
	Workers        int     `long:"workers" env:"BLOCKPARSER_WORKERS" default:"4" description:"number of decode worker threads"`
	Backlog        int     `long:"backlog" env:"BLOCKPARSER_BACKLOG" default:"100" description:"reorder buffer capacity in blocks"`
	Verify         bool    `long:"verify" env:"BLOCKPARSER_VERIFY" description:"recompute merkle roots and check chain links"`
	StatusAddr     string  `long:"status-addr" env:"BLOCKPARSER_STATUS_ADDR" description:"optional HTTP listen address for /progress and /metrics"`
	ClickhouseDSN  string  `long:"clickhouse-dsn" env:"BLOCKPARSER_CLICKHOUSE_DSN" description:"ClickHouse DSN (required by unspentcsvdump and balances)"`
	Verbose        []bool  `short:"v" long:"verbose" description:"verbose logging (-v debug console output)"`
}

const usageCommands = "csvdump, unspentcsvdump, balances, simplestats, opreturn"

// errUsage marks a bad invocation, surfaced as exit code 2.
var errUsage = errors.New("bad invocation")

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest, err := flags.ParseArgs(&cfg, os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(len(cfg.Verbose))
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if len(rest) != 1 {
		logger.Error("expected exactly one subcommand", zap.String("commands", usageCommands))
		os.Exit(2)
	}

	summary, err := run(ctx, cfg, rest[0], logger)
	if err != nil {
		if errors.Is(err, errUsage) {
			logger.Error("bad invocation", zap.Error(err))
			os.Exit(2)
		}
		logger.Fatal("blockparser failed", zap.Error(err))
	}

	fmt.Println(summary)
}

func newLogger(verbosity int) (*zap.Logger, error) {
	if verbosity > 0 {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config, command string, logger *zap.Logger) (string, error) {
	profile, ok := coinprofile.Builtin(cfg.Coin, coinprofile.Network(cfg.Network))
	if !ok {
		return "", fmt.Errorf("%w: unknown coin/network %s/%s", errUsage, cfg.Coin, cfg.Network)
	}
	logger = logger.With(
		zap.String("coin", profile.Name),
		zap.String("network", string(profile.Network)),
	)

	blockDir := cfg.BlockchainDir
	if blockDir == "" {
		blockDir = expandHome(profile.DefaultBlockDir)
	}

	cons, closeCons, err := buildConsumer(cfg, command, logger)
	if err != nil {
		return "", err
	}
	defer closeCons()

	builder := &chainindex.Builder{Profile: &profile, Workers: cfg.Workers}
	idx, err := builder.Build(ctx, blockDir, cfg.ChainstatePath, logger)
	if err != nil {
		return "", err
	}

	end := uint64(idx.Watermark())
	if cfg.End != nil {
		if *cfg.End > end {
			return "", fmt.Errorf("%w: --end %d beyond chain tip %d", errUsage, *cfg.End, end)
		}
		end = *cfg.End
	}
	if cfg.Start > end {
		return "", fmt.Errorf("%w: --start %d beyond --end %d", errUsage, cfg.Start, end)
	}

	dispatcher := pipeline.New(&profile, pipeline.Config{
		Workers: cfg.Workers,
		Backlog: cfg.Backlog,
		Start:   cfg.Start,
		End:     end,
		Verify:  cfg.Verify,
		OnProgress: func(p pipeline.Progress) {
			logger.Info("progress",
				zap.Uint64("processed", p.Processed),
				zap.Uint64("remaining", p.Remaining),
				zap.Float64("blocks_per_sec", p.BlocksPerSec),
				zap.Int("backlog", p.BacklogSize))
		},
	}, metrics.NewPipeline(profile.Name, string(profile.Network)), logger)

	if cfg.StatusAddr != "" {
		statusserver.New(cfg.StatusAddr, dispatcher.Tracker(), logger).Start(ctx)
	}

	return dispatcher.Run(ctx, blockDir, cfg.OutputDir, idx, cons)
}

// buildConsumer maps the subcommand to a consumer implementation, plus a
// cleanup for any backing connection it opened.
func buildConsumer(cfg config, command string, logger *zap.Logger) (consumer.Consumer, func(), error) {
	noop := func() {}

	switch strings.ToLower(command) {
	case "csvdump":
		return csvconsumer.New(logger, csvconsumer.Config{}), noop, nil
	case "opreturn":
		return csvconsumer.NewOpReturn(logger), noop, nil
	case "simplestats":
		return statsconsumer.New(), noop, nil
	case "unspentcsvdump", "balances":
		if cfg.ClickhouseDSN == "" {
			return nil, noop, fmt.Errorf("%w: %s requires --clickhouse-dsn", errUsage, command)
		}
		repo, err := chrepo.NewRepository(cfg.ClickhouseDSN, metrics.NewClickhouseRepository())
		if err != nil {
			return nil, noop, fmt.Errorf("init clickhouse repository: %w", err)
		}
		mode := utxoconsumer.ModeUnspentDump
		if command == "balances" {
			mode = utxoconsumer.ModeBalances
		}
		closeRepo := func() {
			if err := repo.Close(); err != nil {
				logger.Warn("close clickhouse repository", zap.Error(err))
			}
		}
		return utxoconsumer.New(logger, repo, mode), closeRepo, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown command %q (expected one of: %s)", errUsage, command, usageCommands)
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
