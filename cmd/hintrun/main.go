// hintrun runs a hint program against a replayed instruction trace, or
// serves run sessions over Connect and gRPC.
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

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/hintbridge/manifest"
	"github.com/chazu/hintbridge/server"
	"github.com/chazu/hintbridge/store"
)

func main() {
	configPath := flag.String("c", "", "Path to hintbridge.toml (default: search upward from the working directory)")
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	steps := flag.Int("steps", 0, "Override [program] steps")
	serveMode := flag.Bool("serve", false, "Serve the RunService (gRPC + Connect)")
	addr := flag.String("addr", "", "Listen address (overrides [server] addr)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hintrun [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the program named in hintbridge.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hintrun                      # Run using ./hintbridge.toml\n")
		fmt.Fprintf(os.Stderr, "  hintrun -c run.toml -v       # Explicit config, debug logging\n")
		fmt.Fprintf(os.Stderr, "  hintrun -serve -addr :8700   # Serve run sessions\n")
	}
	flag.Parse()

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *steps > 0 {
		m.Program.Steps = *steps
	}
	if *addr != "" {
		m.Server.Addr = *addr
	}

	verbosity := m.Log.Verbosity
	if *verbose {
		verbosity = 2
	}
	var logPath *string
	if p := m.Path(m.Log.File); p != "" {
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveMode {
		err = serve(ctx, m)
	} else {
		_, err = run(ctx, m)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found", manifest.FileName)
	}
	return m, nil
}

func serve(ctx context.Context, m *manifest.Manifest) error {
	opts := []server.ServerOption{server.WithSessionTTL(m.SessionTTL())}
	if p := m.Path(m.Output.History); p != "" {
		history, err := store.Open(p)
		if err != nil {
			return err
		}
		defer history.Close()
		opts = append(opts, server.WithHistory(history))
	}

	srv := server.New(opts...)
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe(m.Server.Addr) }()

	select {
	case err := <-errs:
		srv.Stop(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
