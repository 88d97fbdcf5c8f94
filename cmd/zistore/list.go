package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ListCmd prints every digest currently installed in the store.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "list prints every digest installed in the store",
	Long:  "list prints every digest installed in the store",
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

		names, err := st.ListAll()
		if err != nil {
			fatalf("failed to list store: %v", err)
		}

		for _, name := range names {
			fmt.Println(name)
		}
	},
}
