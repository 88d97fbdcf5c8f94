package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeroinstall-go/zerostore/configuration"
	"github.com/zeroinstall-go/zerostore/debugapi"
	"github.com/zeroinstall-go/zerostore/health"
	"github.com/zeroinstall-go/zerostore/internal/dcontext"
	"github.com/zeroinstall-go/zerostore/store"
)

// ServeCmd is the cobra command that runs the read-only debug API:
// /healthz, /metrics, /store, /store/{digest}.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the read-only debug/introspection API over the store",
	Long:  "serve runs the read-only debug/introspection API over the store",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := resolveConfiguration()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			// nolint:errcheck
			cmd.Usage()
			os.Exit(1)
		}
		ctx := configureLogging(context.Background(), config)
		log := dcontext.GetLogger(ctx)

		if config.HTTP.Addr == "" {
			fatalf("http.addr unset in configuration")
		}

		st, err := openStore(config)
		if err != nil {
			fatalf("failed to open store: %v", err)
		}

		registry := health.NewRegistry()
		if config.Health.Store.Enabled {
			interval := config.Health.Store.Interval
			if interval <= 0 {
				interval = 10 * time.Second
			}
			updater := health.NewStatusUpdater()
			go health.Poll(ctx, updater, st.HealthChecker(), interval)
			registry.Register("store", updater)
			log.Infof("polling store health every %s", interval)
		}

		router := debugapi.NewRouter(registry, st, debugapi.Options{AccessLog: true})

		addr := config.HTTP.Addr
		log.Infof("listening on %v", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			log.Fatalln(err)
		}
	},
}

func openStore(config *configuration.Configuration) (*store.Store, error) {
	var opts []store.Option
	if config.Store.ReadOnly {
		opts = append(opts, store.ReadOnly())
	}
	return store.New(config.Store.RootDirectory, opts...)
}
