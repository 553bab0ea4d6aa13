// quarkd - runs a quark runtime and serves its introspection endpoints
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/quark-os/quark/audit"
	"github.com/quark-os/quark/config"
	"github.com/quark-os/quark/kernel"
	"github.com/quark-os/quark/server"
)

var log = commonlog.GetLogger("quark.quarkd")

func main() {
	configDir := flag.String("config", ".", "Directory containing quark.toml")
	addr := flag.String("addr", "", "Inspector listen address (overrides quark.toml)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quarkd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a quark runtime and serves its introspection endpoints.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quarkd                          # Use ./quark.toml (or defaults)\n")
		fmt.Fprintf(os.Stderr, "  quarkd -config /etc/quark       # Use /etc/quark/quark.toml\n")
		fmt.Fprintf(os.Stderr, "  quarkd -addr localhost:8080     # Override the inspector address\n")
	}
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Inspector.Enabled = true
		cfg.Inspector.Addr = *addr
	}

	verbosity := cfg.Log.Verbosity
	if *verbose && verbosity < 1 {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	rt := server.NewRuntime(cfg.Runtime.Name)
	defer rt.Shutdown()

	var opts []server.InspectorOption
	var procOpts []kernel.ProcessOption

	if cfg.Audit.Enabled {
		path := cfg.Audit.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Dir, path)
		}
		trail, err := audit.Open(path)
		if err != nil {
			return err
		}
		defer trail.Close()
		log.Infof("audit trail at %s", path)

		opts = append(opts, server.WithAuditTrail(trail))
		procOpts = append(procOpts,
			kernel.WithViolationRecorder(trail),
			kernel.WithBadHandlePolicy(kernel.PolicyActionDeny))
	}
	if cfg.Inspector.MaxDumpHandles > 0 {
		opts = append(opts, server.WithMaxDumpHandles(cfg.Inspector.MaxDumpHandles))
	}

	// The root process anchors the runtime; everything else is spawned at
	// the request of diagnostic front-ends or embedding code.
	root, err := rt.Spawn("root", procOpts...)
	if err != nil {
		return err
	}
	log.Infof("runtime %q up, root process koid %d", rt.Name(), root.Koid())

	if !cfg.Inspector.Enabled {
		log.Notice("inspector disabled, idling until signal")
		waitForSignal()
		return nil
	}

	insp := server.NewInspector(rt, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- insp.ListenAndServe(cfg.Inspector.Addr) }()

	select {
	case err := <-errCh:
		return err
	case sig := <-signalChan():
		log.Infof("received %s, shutting down", sig)
		insp.Stop()
		return <-errCh
	}
}

func signalChan() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}

func waitForSignal() {
	<-signalChan()
}
