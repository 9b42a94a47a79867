package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "whatsapp-receiver",
		Short: "Relay WhatsApp webhook events to the AI and persistence backends",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
