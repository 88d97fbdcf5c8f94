package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// VerifyCmd walks every installed digest and reports any whose manifest
// no longer matches the files on disk, without mutating the store.
var VerifyCmd = &cobra.Command{
	Use:   "verify [digest]",
	Short: "verify checks installed implementations against their manifests",
	Long:  "verify checks installed implementations against their manifests, failing without mutating the store",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := resolveConfiguration()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}

		st, err := openStore(config)
		if err != nil {
			fatalf("failed to open store: %v", err)
		}

		if len(args) == 1 {
			if err := st.Verify(args[0]); err != nil {
				fatalf("%s: %v", args[0], err)
			}
			fmt.Printf("%s: ok\n", args[0])
			return
		}

		failures := st.VerifyAll()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %v\n", name, failures[name])
		}
		if len(failures) > 0 {
			os.Exit(1)
		}
	},
}
