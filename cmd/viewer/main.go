// Command viewer serves a leaderboard and replay API over recorded Parquet
// sessions, optionally merging the leaderboards of other viewers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/viewer"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("viewer", flag.ExitOnError)
	dataDirs := fs.String("data-dirs", "", "Comma-separated Parquet roots (default <replay-dir>,<data-dir>/selfplay)")
	peers := fs.String("peers", "", "Comma-separated base URLs of other viewers to merge into the leaderboard")
	refresh := fs.Duration("refresh", 10*time.Second, "How long a DuckDB view is reused before files are rescanned")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	roots := viewer.ParseRoots(*dataDirs)
	if len(roots) == 0 {
		roots = []string{cfg.ReplayDir, filepath.Join(cfg.DataDir, "selfplay")}
	}
	db, err := viewer.Open(roots, *refresh, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	peerList := viewer.ParseRoots(*peers)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           viewer.NewServer(db, peerList, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("viewer listening", "addr", cfg.Listen, "roots", strings.Join(roots, ","), "peers", len(peerList))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
