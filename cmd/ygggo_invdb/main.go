// Command ygggo_invdb serves the inventory data-access API.
//
// Usage:
//
//	ygggo_invdb serve  [-config path]
//	ygggo_invdb health [-addr http://localhost:8080]
//	ygggo_invdb token  [-config path] -level 0 [-subject id] [-ttl 15m]
//	ygggo_invdb version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	invdb "github.com/yggai/ygggo_invdb"
	"github.com/yggai/ygggo_invdb/access"
	"github.com/yggai/ygggo_invdb/internal/bootstrap"
	"github.com/yggai/ygggo_invdb/internal/server"
)

// Injected at build time.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "version":
		fmt.Printf("ygggo_invdb %s (built %s, commit %s)\n", invdb.Version(), BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: ygggo_invdb <command> [flags]

commands:
  serve    run the system check, then serve HTTP
  health   probe a running server's /health
  token    issue a signed access token
  version  print build information`)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (environment when empty)")
	_ = fs.Parse(args)

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := invdb.NewLogger(cfg.Database.Logging)
	logger.Info("starting ygggo_invdb", "version", invdb.Version(), "commit", GitCommit)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m, err := invdb.NewManager(cfg.Database, invdb.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error("closing connection manager", "error", err)
		}
	}()

	if err := bootstrap.New(m, cfg.Root, logger).Run(ctx); err != nil {
		if errors.Is(err, invdb.ErrPoolUnavailable) || errors.Is(err, context.Canceled) {
			return err
		}
		// Seeding problems are reported but do not block serving.
		logger.Error("system check incomplete", "category", bootstrap.LogCategory, "error", err)
	}

	if cfg.Database.Health.Interval > 0 {
		hm := invdb.NewHealthMonitor(m)
		if err := hm.Start(ctx); err != nil {
			return err
		}
		defer hm.Stop()
	}

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	srv, err := server.New(server.Deps{
		Config:  cfg,
		Manager: m,
		Gate:    access.NewGate(table, access.WithLogger(logger)),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return srv.Close()
}

func runHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	fmt.Println("OK")
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (environment when empty)")
	level := fs.Int("level", -1, "access level to embed")
	subject := fs.String("subject", "cli", "token subject")
	ttl := fs.Duration("ttl", 15*time.Minute, "token lifetime")
	_ = fs.Parse(args)

	if *level < 0 {
		return errors.New("-level is required")
	}
	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	tok, err := access.IssueToken(*subject, access.Level(*level), cfg.JWTSecret, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
