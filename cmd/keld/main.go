package main

import (
	"github.com/keldcache/keld/server"
)

func main() {
	// nolint:errcheck
	server.RootCmd.Execute()
}
