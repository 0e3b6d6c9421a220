// token-stats is a Claude Code PostToolUse hook: it reads the invocation
// object from stdin, folds the session transcript into the daily statistics
// and throughput time-series files, and always exits 0 so that a stats
// hiccup can never fail a tool call. The janitor subcommand prunes aged data,
// once or as an installed background service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/Dreamlaunchersarc/token-stats/internal/config"
	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
	"github.com/Dreamlaunchersarc/token-stats/internal/hook"
	"github.com/Dreamlaunchersarc/token-stats/internal/janitor"
)

const version = "1.0.0"

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "janitor":
			runJanitor(args[1:])
			return
		case "version", "--version", "-v":
			fmt.Printf("token-stats version %s\n", version)
			return
		}
	}

	runHook()
}

// runHook executes one stdin-driven invocation. Exit status is 0 no matter
// what: this is a best-effort side channel, never a critical path.
func runHook() {
	cfg, err := config.Load()
	log := debuglog.New(cfg.StatsDir)
	defer log.Close()
	if err != nil {
		log.Warnf("settings: %v", err)
	}

	hook.New(cfg, log).Run(os.Stdin)
	os.Exit(0)
}

// janitorService runs periodic sweeps as a background service.
type janitorService struct {
	interval time.Duration
	stop     chan struct{}
	logger   service.Logger
}

func (s *janitorService) Start(svc service.Service) error {
	s.stop = make(chan struct{})
	go s.run()
	return nil
}

func (s *janitorService) Stop(svc service.Service) error {
	close(s.stop)
	return nil
}

func (s *janitorService) run() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *janitorService) sweep() {
	cfg, err := config.Load()
	if err != nil && s.logger != nil {
		s.logger.Warningf("settings: %v", err)
	}
	log := debuglog.New(cfg.StatsDir)
	defer log.Close()

	removed, err := janitor.New(cfg, log).Sweep()
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("sweep failed: %v", err)
		}
		return
	}
	if s.logger != nil && removed > 0 {
		s.logger.Infof("removed %d aged stats files", removed)
	}
}

func runJanitor(args []string) {
	fs := flag.NewFlagSet("janitor", flag.ExitOnError)
	interval := fs.Duration("interval", 0, "Sweep interval for service mode (default: settings file / 24h)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: token-stats janitor [command] [options]

Commands:
  (none)      Sweep once
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
	}

	// Service verbs come before flags.
	var svcCommand string
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status", "run":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs.Parse(args)

	cfg, cfgErr := config.Load()
	if *interval <= 0 {
		*interval = cfg.JanitorInterval
	}

	if svcCommand == "" {
		log := debuglog.New(cfg.StatsDir)
		defer log.Close()
		if cfgErr != nil {
			log.Warnf("settings: %v", cfgErr)
		}
		removed, err := janitor.New(cfg, log).Sweep()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d aged stats files.\n", removed)
		return
	}

	svcConfig := &service.Config{
		Name:        "token-stats-janitor",
		DisplayName: "token-stats Janitor",
		Description: "Prunes aged Claude Code token statistics",
		Arguments:   []string{"janitor", "run", fmt.Sprintf("-interval=%s", *interval)},
	}

	svc := &janitorService{interval: *interval}
	s, err := service.New(svc, svcConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch svcCommand {
	case "install":
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
			os.Exit(1)
		}
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Service installed but failed to start: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Service installed and started (interval %s).\n", *interval)

	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service stopped.")

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Service uninstalled.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}

	case "run":
		logger, err := s.Logger(nil)
		if err == nil {
			svc.logger = logger
		}
		if err := s.Run(); err != nil && svc.logger != nil {
			svc.logger.Error(err)
		}
	}
}
