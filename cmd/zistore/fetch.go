package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeroinstall-go/zerostore/fetch"
	"github.com/zeroinstall-go/zerostore/internal/dcontext"
	"github.com/zeroinstall-go/zerostore/manifest"
	"github.com/zeroinstall-go/zerostore/model"
	"github.com/zeroinstall-go/zerostore/scheduler"
)

// planArchive is the JSON shape of one model.Archive entry in a plan
// file, matching the field names a FeedProvider would already have
// parsed out of a feed's <archive>/<recipe> elements.
type planArchive struct {
	URL         string `json:"url"`
	MIMEType    string `json:"mime_type,omitempty"`
	Size        int64  `json:"size"`
	StartOffset int64  `json:"start_offset,omitempty"`
	SubDir      string `json:"sub_dir,omitempty"`
}

type planRecipe struct {
	Archives []planArchive `json:"archives"`
}

type planImplementation struct {
	Digest  string        `json:"digest"`
	Archive []planArchive `json:"archive,omitempty"`
	Recipe  []planRecipe  `json:"recipe,omitempty"`
}

type plan struct {
	Implementations []planImplementation `json:"implementations"`
}

func (a planArchive) toModel() model.Archive {
	return model.Archive{
		URL:         a.URL,
		MIMEType:    a.MIMEType,
		Size:        a.Size,
		StartOffset: a.StartOffset,
		SubDir:      a.SubDir,
	}
}

func (p plan) toFetchRequest() (model.FetchRequest, error) {
	req := model.FetchRequest{Implementations: make([]model.Implementation, 0, len(p.Implementations))}
	for _, pi := range p.Implementations {
		digest, ok := manifest.ParseDigestString(pi.Digest)
		if !ok {
			return model.FetchRequest{}, fmt.Errorf("invalid digest %q", pi.Digest)
		}

		impl := model.Implementation{Digest: digest}
		for _, a := range pi.Archive {
			impl.Archive = append(impl.Archive, a.toModel())
		}
		for _, r := range pi.Recipe {
			recipe := model.Recipe{}
			for _, a := range r.Archives {
				recipe.Archives = append(recipe.Archives, a.toModel())
			}
			impl.Recipe = append(impl.Recipe, recipe)
		}
		req.Implementations = append(req.Implementations, impl)
	}
	return req, nil
}

var fetchPlanPath string

func init() {
	FetchCmd.Flags().StringVarP(&fetchPlanPath, "plan", "p", "", "path to a JSON file describing the implementations to fetch")
	// nolint:errcheck
	FetchCmd.MarkFlagRequired("plan")
}

// FetchCmd drives the Fetcher against a plan file's Implementations,
// installing each into the configured store.
var FetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "fetch retrieves and installs implementations described by a plan file",
	Long:  "fetch retrieves and installs implementations described by a plan file",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := resolveConfiguration()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
		ctx := configureLogging(context.Background(), config)

		st, err := openStore(config)
		if err != nil {
			fatalf("failed to open store: %v", err)
		}

		raw, err := os.ReadFile(fetchPlanPath)
		if err != nil {
			fatalf("failed to read plan file: %v", err)
		}

		var p plan
		if err := json.Unmarshal(raw, &p); err != nil {
			fatalf("failed to parse plan file: %v", err)
		}

		req, err := p.toFetchRequest()
		if err != nil {
			fatalf("invalid plan file: %v", err)
		}

		sched := scheduler.New(
			config.Scheduler.MaxSimultaneous,
			scheduler.WithRetryPolicy(config.Scheduler.RetryAttempts, config.Scheduler.RetryWaitMin, config.Scheduler.RetryWaitMax),
		)

		fetcher, err := fetch.New(st, sched)
		if err != nil {
			fatalf("failed to construct fetcher: %v", err)
		}

		paths, err := fetcher.Fetch(ctx, req)
		if err != nil {
			fatalf("fetch failed: %v", err)
		}

		log := dcontext.GetLogger(ctx)
		log.Infof("fetched %d implementation(s)", len(paths))
		for digest, path := range paths {
			fmt.Printf("%s\t%s\n", digest, path)
		}
	},
}
