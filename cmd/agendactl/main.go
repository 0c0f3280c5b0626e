// Command agendactl inspects and operates the clinic agenda from a terminal.
//
// Usage:
//
//	agendactl [-backend URL] [-json] <command> [flags]
//
// Commands: list, today, stats, status, overview, sync, confirm <id>, cancel <id>.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfman30/dental-agenda/cmd/mainconfig"
	"github.com/wolfman30/dental-agenda/internal/app/bootstrap"
)

func main() {
	cfg, logger := mainconfig.LoadWithLogOutput(os.Stderr)

	fs := flag.NewFlagSet("agendactl", flag.ExitOnError)
	backend := fs.String("backend", cfg.BackendURL, "appointments backend base URL")
	asJSON := fs.Bool("json", false, "print JSON instead of tables")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: agendactl [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", commandHelp)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg.BackendURL = *backend
	client, err := bootstrap.BuildClinicClient(cfg, logger, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agendactl:", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agendactl:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &cli{
		api:      client,
		out:      os.Stdout,
		json:     *asJSON,
		location: loc,
		settle:   cfg.SyncSettleDelay,
		logger:   logger,
	}
	if err := cli.run(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "agendactl:", err)
		os.Exit(1)
	}
}
