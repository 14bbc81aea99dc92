package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("contentexpiry failed")
		os.Exit(1)
	}
}
