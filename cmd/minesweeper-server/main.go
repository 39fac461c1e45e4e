// Command minesweeper-server serves one shared Minesweeper board over TCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/minesweeper/board"
	"github.com/cyberinferno/minesweeper/config"
	"github.com/cyberinferno/minesweeper/layout"
	"github.com/cyberinferno/minesweeper/logger"
	"github.com/cyberinferno/minesweeper/minesweeper"
	"github.com/cyberinferno/minesweeper/utils"
	"github.com/cyberinferno/minesweeper/viewcache"
)

const statusInterval = time.Minute

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log, err := logger.New(logger.Options{
		Service: "minesweeper",
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
		Console: cfg.LogConsole,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	b, err := newBoard(cfg, log)
	if err != nil {
		log.Error("failed to build board", logger.Field{Key: "error", Value: err})
		return err
	}

	views, closeViews, err := newViewCache(cfg, log)
	if err != nil {
		log.Error("failed to set up view cache", logger.Field{Key: "error", Value: err})
		return err
	}
	defer closeViews()

	srv := minesweeper.NewServer(minesweeper.ServerConfig{
		Addr:         cfg.Addr(),
		Debug:        cfg.Debug,
		WriteTimeout: cfg.WriteTimeout,
	}, b, views, log)

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		srv.Stop()
		return nil
	})
	g.Go(func() error {
		reportStatus(ctx, srv, log)
		return nil
	})

	return g.Wait()
}

// newBoard loads the board file when one is configured and generates a
// random board otherwise.
func newBoard(cfg config.Config, log logger.Logger) (*board.Board, error) {
	var (
		l   layout.Layout
		err error
	)

	if cfg.File != "" {
		l, err = layout.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		log.Info("board loaded", logger.Field{Key: "file", Value: cfg.File})
	} else {
		l, err = layout.Random(cfg.Width, cfg.Height, cfg.MineProbability, nil)
		if err != nil {
			return nil, err
		}
		log.Info("board generated", logger.Field{Key: "mine_probability", Value: cfg.MineProbability})
	}

	log.Debug("board mines", logger.Field{Key: "count", Value: l.MineCount()})

	return board.New(l.Width, l.Height, l.Mines)
}

// newViewCache builds the configured render cache and a func releasing it.
func newViewCache(cfg config.Config, log logger.Logger) (viewcache.ViewCache, func(), error) {
	// Each process gets its own namespace so servers sharing a redis never
	// read each other's boards.
	namespace := "minesweeper:" + utils.GenerateRandomString(12)

	switch cfg.Cache {
	case config.CacheNone:
		return viewcache.NewNop(), func() {}, nil

	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}

		log.Info("view cache ready",
			logger.Field{Key: "backend", Value: cfg.Cache},
			logger.Field{Key: "namespace", Value: namespace},
		)
		return viewcache.NewRedis(client, namespace, cfg.CacheTTL), func() { _ = client.Close() }, nil

	default:
		log.Info("view cache ready", logger.Field{Key: "backend", Value: cfg.Cache})
		return viewcache.NewMemory(namespace, cfg.CacheTTL), func() {}, nil
	}
}

// reportStatus logs player counts by session state and the board version
// until ctx is done.
func reportStatus(ctx context.Context, srv *minesweeper.Server, log logger.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states := srv.SessionStates()
			log.Info("status",
				logger.Field{Key: "players", Value: srv.Players()},
				logger.Field{Key: "active", Value: states[minesweeper.Active]},
				logger.Field{Key: "greeting", Value: states[minesweeper.Greeting]},
				logger.Field{Key: "board_version", Value: srv.Board().Version()},
			)
		}
	}
}
