// worklog-mcp exposes worklog reconciliation as MCP tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/worklog-sync/internal/app"
	"github.com/vthunder/worklog-sync/internal/config"
	"github.com/vthunder/worklog-sync/internal/logging"
)

func main() {
	// stdout carries JSON-RPC
	log.SetOutput(os.Stderr)

	configFile := flag.String("config", "", "config file (default is ./worklog-sync.yaml)")
	fixture := flag.String("fixture", "", "serve a YAML fixture from an in-memory store instead of Notion")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.SetDebug(cfg.Debug)

	a, err := app.New(context.Background(), cfg, app.Options{Fixture: *fixture})
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	s := server.NewMCPServer(
		"worklog-sync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	newTools(a).register(s)

	logging.Info("mcp", "serving on stdio")
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
