package main

import (
	"context"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/agentportal/cmd/agentportal/cmd"
)

func main() {
	err := cmd.Execute(context.Background())
	memguard.Purge()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
