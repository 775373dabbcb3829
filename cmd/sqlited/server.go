package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/jmhu/sqlited/observability"
)

// runServe opens the database, binds the listener, and runs one
// connection goroutine per accepted socket inside an errgroup so a
// shutdown signal can unwind them together.
func runServe(ctx context.Context, v *viper.Viper) error {
	logger := observability.NewLogger(os.Stdout, parseLevel(v.GetString("log-level")))
	metrics := observability.NewPromMetrics(nil)

	db, err := sql.Open("sqlite", v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lis, err := net.Listen("tcp", v.GetString("listen"))
	if err != nil {
		return fmt.Errorf("listen on %s: %w", v.GetString("listen"), err)
	}
	defer lis.Close()
	logger.Log(observability.LevelInfo, "sqlited listening", "addr", lis.Addr().String(), "db", v.GetString("db"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Log(observability.LevelInfo, "shutdown signal received")
			cancel()
			lis.Close()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	bufferCap := v.GetInt("buffer-cap")

	for {
		conn, err := lis.Accept()
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			return fmt.Errorf("accept: %w", err)
		}
		g.Go(func() error {
			c := newConnection(conn, db, logger, metrics, bufferCap)
			defer c.close()
			c.serve(gctx)
			return nil
		})
	}

	return g.Wait()
}

func parseLevel(s string) observability.Level {
	switch s {
	case "debug":
		return observability.LevelDebug
	case "warn":
		return observability.LevelWarn
	case "error":
		return observability.LevelError
	default:
		return observability.LevelInfo
	}
}
