package main

import (
	"os"

	"github.com/banoo-shop/storefront/cmd/storefrontctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
