// Package cli wires together configuration, storage, the adapter registry,
// the flow engine, the scheduler, and the HTTP API into one running process,
// with graceful shutdown on SIGINT/SIGTERM — the same shape as the
// teacher's own root command, generalized from RabbitMQ/CouchDB service
// wiring to this system's SQLite router and document-flow engine.
package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/exef-pl/exef/adapters"
	"github.com/exef-pl/exef/cache"
	"github.com/exef-pl/exef/config"
	"github.com/exef-pl/exef/flow"
	"github.com/exef-pl/exef/httpapi"
	"github.com/exef-pl/exef/router"
	"github.com/exef-pl/exef/scheduler"
	"github.com/exef-pl/exef/store"
)

var cfgFile string

// RootCmd is the exef server's entry point: load configuration, open
// storage, and serve the HTTP API until interrupted.
var RootCmd = &cobra.Command{
	Use:   "exef",
	Short: "document-flow engine for Polish accounting workflows",
	Long: `exef ingests invoices, receipts, and bank transfers from IMAP, KSeF,
CSV, webhook, and manual sources, canonicalises them into one document
shape, routes them to per-entity SQLite storage, and runs them through an
import → describe → export workflow with two-tier access control and
exports to wFirma, Comarch, Symfonia, enova365, JPK_PKPIR, and CSV.`,
	Run: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.exef.yaml)")
	RootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")
	RootCmd.PersistentFlags().String("database-url", "", "main database file path")

	viper.BindPFlag("listen_addr", RootCmd.PersistentFlags().Lookup("listen-addr"))
	viper.BindPFlag("database_url", RootCmd.PersistentFlags().Lookup("database-url"))
}

// initConfig finds and reads a config file, and enables EXEF_-prefixed
// environment variables to override it, ahead of config.Load()'s viper read.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".exef")
	}

	viper.SetEnvPrefix("EXEF")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

// runServer loads configuration, opens the main database, and starts the
// scheduler and HTTP server, blocking until SIGINT/SIGTERM triggers a
// graceful shutdown.
func runServer(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	mainDB, err := store.OpenMain(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open main database: %v", err)
	}
	defer mainDB.Close()

	rt := router.NewManager(cfg)
	defer rt.Close()

	if err := rt.MigrateIfNeeded(mainDB); err != nil {
		log.Fatalf("migrate to per-entity storage: %v", err)
	}

	registry := adapters.NewRegistry()
	engine := flow.NewEngine(mainDB, rt, registry, cfg.SourceSecretKey)

	var locks *cache.Manager
	if cfg.RedisURL != "" {
		locks, err = cache.NewManager(cfg.RedisURL)
		if err != nil {
			log.Printf("redis unavailable, running without distributed locks: %v", err)
			locks = nil
		} else {
			defer locks.Close()
		}
	}

	sched := scheduler.New(mainDB, cfg, rt, engine, locks)
	if err := sched.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer sched.Stop()

	server := httpapi.NewServer(cfg, mainDB, rt, registry, engine, locks)
	e := server.NewEcho()

	go func() {
		log.Printf("exef listening on %s", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
