package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opsdeck/dbackup/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Logging flags.
	verbose    bool
	quiet      bool
	jsonOutput bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "dbackup",
	Short: "Dump local databases over their UNIX sockets",
	Long: `dbackup backs up PostgreSQL and MariaDB/MySQL instances by invoking each
engine's native dump utility over a UNIX domain socket and writing one
timestamped dump file per configured target.

Targets are declared in a YAML mapping (default /etc/dbackup/dbackup.yaml):

  pg-main:
    type: postgresql
    socket: /var/run/postgresql
    user: backup
    password: example

Use as a one-shot command under an external scheduler, or let the daemon
subcommand drive runs on a built-in cron schedule.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "path to the target definition file")
	rootCmd.PersistentFlags().StringP("output", "o", config.DefaultOutputDir, "directory receiving dump files")
	rootCmd.PersistentFlags().Bool("compress", false, "gzip completed dumps")
	rootCmd.PersistentFlags().Int("retention-days", 0, "delete dumps older than this many days (0 disables pruning)")
	rootCmd.PersistentFlags().String("s3-bucket", "", "upload completed dumps to this S3 bucket")
	rootCmd.PersistentFlags().String("s3-prefix", "", "key prefix for uploaded dumps")
	rootCmd.PersistentFlags().String("s3-region", "", "region of the S3 bucket")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (size-rotated)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(daemonCmd)
}

func setupLogging() {
	// Set output format
	var base io.Writer
	if jsonOutput {
		base = os.Stdout
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		base = output
	}

	writer := base
	if path := resolveLogFile(); path != "" {
		writer = zerolog.MultiLevelWriter(base, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// resolveLogFile applies the flag-over-environment precedence for the log
// destination. It runs before full settings resolution so logging is already
// live when settings turn out to be invalid.
func resolveLogFile() string {
	if logFile != "" {
		return logFile
	}
	return os.Getenv("DBACKUP_LOG_FILE")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
