package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/opsdeck/dbackup/internal/config"
	"github.com/opsdeck/dbackup/internal/services/dump"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the target definition file",
	Long:  `Parse the target definition file and check every target without executing any dump.`,
	RunE:  validateTargets,
}

func validateTargets(cmd *cobra.Command, args []string) error {
	settings, err := config.ResolveSettings(cmd.Flags())
	if err != nil {
		log.Error().Err(err).Msg("invalid settings")
		return err
	}

	// Check if file exists
	if _, err := os.Stat(settings.ConfigPath); os.IsNotExist(err) {
		log.Error().Str("file", settings.ConfigPath).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", settings.ConfigPath)
	}

	// Load target definitions
	parser := config.NewParser()
	targets, err := parser.LoadFile(settings.ConfigPath)
	if err != nil {
		log.Error().Err(err).Str("file", settings.ConfigPath).Msg("failed to parse config")
		return err
	}

	registry := dump.NewRegistry()
	invalid := 0

	// Print per-target summary
	fmt.Printf("Loaded %d target(s) from %s\n\n", len(targets), settings.ConfigPath)
	for _, target := range targets {
		problem := ""
		if err := config.ValidateTarget(target); err != nil {
			problem = err.Error()
		} else if _, err := registry.ForType(target.Type); err != nil {
			problem = err.Error()
		}

		if problem == "" {
			fmt.Printf("  %s: ok (%s via %s)\n", target.Name, target.Type, target.Socket)
		} else {
			fmt.Printf("  %s: INVALID (%s)\n", target.Name, problem)
			invalid++
		}
	}
	fmt.Println()

	if invalid > 0 {
		return fmt.Errorf("%d of %d target(s) invalid", invalid, len(targets))
	}

	fmt.Println("Configuration is valid!")
	return nil
}
