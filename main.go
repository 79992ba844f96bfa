package main

import (
	"fmt"
	"os"

	"github.com/clearbalance/revcycle-pipeline/internal/cli/cmd"
	"github.com/clearbalance/revcycle-pipeline/internal/cli/runner"
)

// Version information set via ldflags at build time
var (
	version   string
	gitCommit string
	buildDate string
)

func main() {
	cmd.Version = version
	cmd.GitCommit = gitCommit
	cmd.BuildDate = buildDate

	cmd.SetFactories(runner.Factories{
		CreateSourceAdapter: CreateSourceAdapterFunc,
		CreateProcessor:     CreateProcessorFunc,
		CreateConsumer:      CreateConsumerFunc,
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
