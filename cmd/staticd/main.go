// Command staticd serves a directory tree over HTTP/1.1, either through a
// fixed-size work-stealing thread pool (default) or a single-threaded
// readiness-driven reactor (--kqueue).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/staticd/internal/logging"
	"github.com/nabbar/staticd/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "staticd",
		Short:         "A static file HTTP server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	defaultThreads := runtime.NumCPU()
	if defaultThreads < 1 {
		defaultThreads = 4
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "TCP port to listen on")
	flags.Int("threads", defaultThreads, "number of worker threads in pool mode")
	flags.String("root", "./public", "document root to serve")
	flags.Int("cache-size", 1024, "maximum number of cached file entries")
	flags.Bool("kqueue", false, "use the single-threaded event reactor instead of the thread pool")

	v.SetEnvPrefix("STATICD")
	v.AutomaticEnv()
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("threads", flags.Lookup("threads"))
	_ = v.BindPFlag("root", flags.Lookup("root"))
	_ = v.BindPFlag("cache-size", flags.Lookup("cache-size"))
	_ = v.BindPFlag("kqueue", flags.Lookup("kqueue"))

	return cmd
}

func run(v *viper.Viper) error {
	log := logging.New(os.Stdout)

	cfg := server.Config{
		Port:       v.GetInt("port"),
		Threads:    v.GetInt("threads"),
		DocRoot:    v.GetString("root"),
		CacheSize:  v.GetInt("cache-size"),
		UseReactor: v.GetBool("kqueue"),
		Log:        log,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("staticd: %w", err)
	}

	mode := "thread-pool"
	if cfg.UseReactor {
		mode = "reactor"
	}
	log.Infof("Starting HTTP server on port %d", cfg.Port)
	log.Infof("Document root: %s", cfg.DocRoot)
	log.Infof("Thread pool size: %d", cfg.Threads)
	log.Infof("Mode: %s", mode)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("staticd: %w", err)
	}

	waitForShutdownSignal()
	srv.Stop()
	return nil
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM arrives, polling at
// roughly 1Hz the way the original's main loop did, so a test harness can
// substitute a short-lived signal without depending on select timing.
func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
		}
	}
}
