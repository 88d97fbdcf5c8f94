// Package main implements the zistore CLI: operational tooling around
// the Directory Store and Fetcher, grounded on the teacher's cmd/registry
// cobra command tree (RootCmd/ServeCmd/GCCmd in registry/root.go and
// registry/registry.go). It never resolves feeds or manages desktop
// integration; it takes concrete Implementation values (or a small
// recipe/archive JSON file) and drives the store and fetcher directly.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zeroinstall-go/zerostore/configuration"
	"github.com/zeroinstall-go/zerostore/internal/dcontext"
)

var showVersion bool

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(FetchCmd)
	RootCmd.AddCommand(ListCmd)
	RootCmd.AddCommand(VerifyCmd)
	RootCmd.AddCommand(GCCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to zistore configuration YAML")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
}

var configPath string

// version is set at release time via -ldflags; "dev" otherwise.
var version = "dev"

// RootCmd is the main command for the zistore binary.
var RootCmd = &cobra.Command{
	Use:   "zistore",
	Short: "zistore manages a local content-addressed implementation store",
	Long:  "zistore manages a local content-addressed implementation store",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println("zistore", version)
			return
		}
		// nolint:errcheck
		cmd.Usage()
	},
}

func resolveConfiguration() (*configuration.Configuration, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("ZISTORE_CONFIGURATION_PATH")
	}
	if path == "" {
		return nil, fmt.Errorf("configuration path unspecified: pass --config or set ZISTORE_CONFIGURATION_PATH")
	}

	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", path, err)
	}
	return config, nil
}

// configureLogging applies config.Log's level and formatter to the global
// logrus logger, then — mirroring the teacher's cmd/registry
// configureLogging, which attaches config.Log.Fields to the request
// context via ctxu.WithValues/WithLogger — returns a context carrying a
// logger pre-populated with config.Log.Fields, so every subsequent
// dcontext.GetLogger(ctx) call in this command picks them up without the
// caller needing to know they exist.
func configureLogging(ctx context.Context, config *configuration.Configuration) context.Context {
	level, err := logrus.ParseLevel(string(config.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch config.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	if len(config.Log.Fields) == 0 {
		return ctx
	}
	fields := make(map[any]any, len(config.Log.Fields))
	for k, v := range config.Log.Fields {
		fields[k] = v
	}
	logger := dcontext.GetLoggerWithFields(ctx, fields)
	return dcontext.WithLogger(ctx, logger)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fatalf("%v", err)
	}
}
