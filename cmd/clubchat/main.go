package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/tcriess/clubchat/config"
	"github.com/tcriess/clubchat/feed"
	"github.com/tcriess/clubchat/filter"
	"github.com/tcriess/clubchat/globals"
	"github.com/tcriess/clubchat/metrics"
	"github.com/tcriess/clubchat/persistence"
	"github.com/tcriess/clubchat/retention"
	"github.com/tcriess/clubchat/store"
	"github.com/tcriess/clubchat/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		globals.AppLogger.Warn("could not load .env file", "error", err)
	}

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	notifier, err := feed.NewNotifier(globalConfig)
	if err != nil {
		panic(err)
	}
	defer notifier.Close()

	rules, err := filter.NewRules(globalConfig.AccessConfig)
	if err != nil {
		panic(err)
	}

	chatStore, err := store.New(globalConfig, persister, notifier)
	if err != nil {
		panic(err)
	}
	defer chatStore.Close()

	purger, err := retention.NewRunner(globalConfig.RetentionConfig, chatStore)
	if err != nil {
		panic(err)
	}
	purger.Start()
	defer purger.Stop()

	server := &http.Server{
		Addr:    globalConfig.Addr,
		Handler: ws.NewServer(globalConfig, chatStore, rules).Router(),
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			globals.AppLogger.Error("could not shut down server", "error", err)
		}
	}()

	globals.AppLogger.Info("listening", "addr", globalConfig.Addr, "persistence", globalConfig.PersistenceConfig.Type, "notifier", globalConfig.FeedConfig.Notifier)
	if *sslCert != "" && *sslKey != "" {
		err = server.ListenAndServeTLS(*sslCert, *sslKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		globals.AppLogger.Error("stopped listening", "error", err)
	}
}
