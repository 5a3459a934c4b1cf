package main

import (
	"math/rand/v2"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/llxisdsh/synctable"
	"github.com/llxisdsh/synctable/internal/config"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// benchBatch is the number of operations one pool task performs.
const benchBatch = 1024

type benchOptions struct {
	workers int
	ops     int
	keys    int
}

type benchResult struct {
	ops      int64
	failures int64
	elapsed  time.Duration
	stats    *synctable.TableStats
}

func benchCommand(cfg *config.Config) *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Hammer an in-process table from a worker pool",
		Long:  "Run a mix of Put, Get, Merge and Remove calls against one table from a pool of goroutines and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runBench(cfg, opts)
			if err != nil {
				return err
			}
			log.Info().
				Int64("ops", result.ops).
				Int64("failures", result.failures).
				Dur("elapsed", result.elapsed).
				Float64("ops_per_sec", float64(result.ops)/result.elapsed.Seconds()).
				Msg("bench finished")
			log.Debug().Msg(result.stats.ToString())
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "size of the worker pool")
	cmd.Flags().IntVar(&opts.ops, "ops", 1_000_000, "total number of operations")
	cmd.Flags().IntVar(&opts.keys, "keys", 10_000, "number of distinct keys")
	return cmd
}

func runBench(cfg *config.Config, opts benchOptions) (*benchResult, error) {
	if opts.workers <= 0 || opts.ops < 0 || opts.keys <= 0 {
		return nil, errors.Newf("invalid bench options %+v", opts)
	}
	table, err := synctable.New[string, string](append(cfg.TableOptions(), synctable.WithLogger(log.Logger))...)
	if err != nil {
		return nil, errors.Wrap(err, "could not create the table")
	}

	pool, err := ants.NewPool(opts.workers, ants.WithPanicHandler(func(v any) {
		log.Error().Interface("panic", v).Msg("bench task panicked")
	}))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	keys := make([]string, opts.keys)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}

	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		failures atomic.Int64
	)
	start := time.Now()
	for first := 0; first < opts.ops; first += benchBatch {
		n := min(benchBatch, opts.ops-first)
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				if err := benchOp(table, keys[rand.IntN(len(keys))], first+i); err != nil {
					failures.Add(1)
				}
			}
			done.Add(int64(n))
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, errors.Wrap(err, "could not submit a bench task")
		}
	}
	wg.Wait()

	return &benchResult{
		ops:      done.Load(),
		failures: failures.Load(),
		elapsed:  time.Since(start),
		stats:    table.Stats(),
	}, nil
}

func benchOp(table *synctable.Table[string, string], key string, i int) error {
	switch i % 4 {
	case 0:
		_, _, err := table.Put(key, "v")
		return err
	case 1:
		table.Get(key)
	case 2:
		_, _, err := table.Merge(key, "m", func(oldValue, value string) (string, bool) {
			if len(oldValue) >= 64 {
				return value, true
			}
			return oldValue + value, true
		})
		return err
	default:
		table.Remove(key)
	}
	return nil
}
