package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opsdeck/dbackup/internal/models"
)

// Built-in defaults for the two filesystem locations dbackup touches.
const (
	DefaultConfigPath = "/etc/dbackup/dbackup.yaml"
	DefaultOutputDir  = "/output"
)

// envBindings maps every settings key to its environment variable. Secrets
// are deliberately absent from the flag set and only reachable through the
// environment, so they never show up in shell history or process listings.
var envBindings = map[string]string{
	"config":             "DBACKUP_CONFIG_PATH",
	"output":             "DBACKUP_OUTPUT_DIR",
	"compress":           "DBACKUP_COMPRESS",
	"retention-days":     "DBACKUP_RETENTION_DAYS",
	"s3-bucket":          "DBACKUP_S3_BUCKET",
	"s3-prefix":          "DBACKUP_S3_PREFIX",
	"s3-region":          "DBACKUP_S3_REGION",
	"s3-access-key":      "DBACKUP_S3_ACCESS_KEY",
	"s3-secret-key":      "DBACKUP_S3_SECRET_KEY",
	"telegram-bot-token": "DBACKUP_TELEGRAM_BOT_TOKEN",
	"telegram-chat-id":   "DBACKUP_TELEGRAM_CHAT_ID",
}

// flagBindings lists the settings keys that also exist as command-line flags.
var flagBindings = []string{
	"config",
	"output",
	"compress",
	"retention-days",
	"s3-bucket",
	"s3-prefix",
	"s3-region",
}

// ResolveSettings merges command-line flags, DBACKUP_* environment variables,
// and built-in defaults into the process settings. An explicitly set flag
// wins over its environment variable, which wins over the default.
func ResolveSettings(flags *pflag.FlagSet) (models.Settings, error) {
	v := viper.New()

	v.SetDefault("config", DefaultConfigPath)
	v.SetDefault("output", DefaultOutputDir)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return models.Settings{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if flags != nil {
		for _, key := range flagBindings {
			flag := flags.Lookup(key)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return models.Settings{}, fmt.Errorf("binding --%s: %w", key, err)
			}
		}
	}

	settings := models.Settings{
		ConfigPath:    v.GetString("config"),
		OutputDir:     v.GetString("output"),
		Compress:      v.GetBool("compress"),
		RetentionDays: v.GetInt("retention-days"),
	}

	if settings.ConfigPath == "" {
		return models.Settings{}, fmt.Errorf("config path must not be empty")
	}
	if settings.OutputDir == "" {
		return models.Settings{}, fmt.Errorf("output directory must not be empty")
	}
	if settings.RetentionDays < 0 {
		return models.Settings{}, fmt.Errorf("retention days must not be negative")
	}

	// Parse optional S3 settings.
	if bucket := v.GetString("s3-bucket"); bucket != "" {
		settings.S3 = &models.S3Settings{
			Bucket:    bucket,
			Prefix:    v.GetString("s3-prefix"),
			Region:    v.GetString("s3-region"),
			AccessKey: v.GetString("s3-access-key"),
			SecretKey: v.GetString("s3-secret-key"),
		}

		if settings.S3.Region == "" {
			return models.Settings{}, fmt.Errorf("s3 region is required when an s3 bucket is configured")
		}
		if (settings.S3.AccessKey == "") != (settings.S3.SecretKey == "") {
			return models.Settings{}, fmt.Errorf("s3 access key and secret key must be set together")
		}
	}

	// Parse optional Telegram settings.
	token := v.GetString("telegram-bot-token")
	chatID := v.GetString("telegram-chat-id")
	switch {
	case token != "" && chatID != "":
		settings.Telegram = &models.TelegramSettings{BotToken: token, ChatID: chatID}
	case token != "" || chatID != "":
		return models.Settings{}, fmt.Errorf("telegram bot token and chat id must be set together")
	}

	return settings, nil
}
