// Command navigate runs the farm analysis API, its sync worker and migrations.
package main

import (
	"os"

	"github.com/Fairfood/Navigate-Server/cmd/api/app"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
