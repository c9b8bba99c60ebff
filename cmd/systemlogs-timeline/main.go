package main

import (
	"fmt"
	"os"

	"github.com/Slach/systemlogs-timeline/pkg/cli"
	"github.com/Slach/systemlogs-timeline/pkg/logging"
	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	logging.InitConsoleStdErrLog()
	cliInstance := &types.CLI{}
	rootCmd := cli.NewRootCommand(cliInstance, version)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Stack().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
