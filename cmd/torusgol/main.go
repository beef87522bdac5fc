package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"uk.ac.bris.cs/torusgol/comm"
	"uk.ac.bris.cs/torusgol/gol"
)

type config struct {
	params  gol.Params
	rank    int
	peers   []string
	timeout time.Duration
	verbose bool
}

// parseConfig reads the flags, falling back to TORUSGOL_PEERS and
// TORUSGOL_RANK for a rank started without -peers or -rank.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config
	var peers string

	flags := flag.NewFlagSet("torusgol", flag.ContinueOnError)
	flags.IntVar(&cfg.params.Size, "size", 1024, "universe width and height")
	flags.IntVar(&cfg.params.Ticks, "ticks", 128, "number of ticks to run")
	flags.IntVar(&cfg.params.Ranks, "ranks", 1, "number of ranks when running in one process")
	flags.IntVar(&cfg.params.Threads, "threads", 1, "worker threads per rank")
	flags.Float64Var(&cfg.params.Threshold, "threshold", 0.25, "a cell starts alive iff its draw is above this")
	flags.Int64Var(&cfg.params.Seed, "seed", 1, "seed of the initial universe")
	flags.IntVar(&cfg.rank, "rank", -1, "rank of this process, with -peers")
	flags.StringVar(&peers, "peers", getenv("TORUSGOL_PEERS"), "comma separated peer addresses, one per rank")
	flags.DurationVar(&cfg.timeout, "timeout", comm.DefaultPeerTimeout, "longest wait for a peer, with -peers; must cover the slowest tick")
	flags.BoolVar(&cfg.verbose, "v", false, "log every tick")
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}
	if flags.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}

	if peers == "" {
		return cfg, cfg.params.Validate()
	}
	if cfg.timeout <= 0 {
		return cfg, fmt.Errorf("-timeout %v must be positive", cfg.timeout)
	}

	for _, addr := range strings.Split(peers, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cfg.peers = append(cfg.peers, addr)
		}
	}
	cfg.params.Ranks = len(cfg.peers)

	if cfg.rank < 0 {
		env := getenv("TORUSGOL_RANK")
		if env == "" {
			return cfg, errors.New("-rank (or TORUSGOL_RANK) is required with -peers")
		}
		rank, err := strconv.Atoi(env)
		if err != nil {
			return cfg, fmt.Errorf("TORUSGOL_RANK: %w", err)
		}
		cfg.rank = rank
	}
	if cfg.rank >= len(cfg.peers) {
		return cfg, fmt.Errorf("rank %d outside of %d peers", cfg.rank, len(cfg.peers))
	}
	return cfg, cfg.params.Validate()
}

// run executes the configured simulation. Only rank 0 writes the summary.
func run(ctx context.Context, cfg config, out io.Writer) error {
	opts := []gol.Option{gol.WithTickLog(cfg.verbose)}

	var report gol.Report
	if cfg.peers == nil {
		_, reports, err := gol.Simulate(ctx, cfg.params, nil, opts...)
		if err != nil {
			return err
		}
		report = reports[0]
	} else {
		transport, err := comm.ListenGRPC(cfg.rank, cfg.peers, comm.WithPeerTimeout(cfg.timeout))
		if err != nil {
			return err
		}
		c := comm.New(transport, comm.WithRecvTimeout(cfg.timeout))
		defer c.Close()

		r, err := gol.NewRank(cfg.params, c, opts...)
		if err != nil {
			return err
		}
		r.Partition().SeedRandom(gol.NewRowSource(cfg.params.Seed), cfg.params.Threshold)
		if report, err = r.Run(ctx); err != nil {
			return err
		}
		if cfg.rank != 0 {
			return nil
		}
	}

	fmt.Fprintf(out, "%v\n", cfg.params)
	fmt.Fprintf(out, "Completed %d ticks in %v\n", report.Ticks, report.Elapsed)
	fmt.Fprintf(out, "Alive cells: %d\n", report.Alive)
	return nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("torusgol: %v", err)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatalf("torusgol: %v", err)
	}
}
