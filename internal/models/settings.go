package models

// Settings holds the process-level options resolved from flags, DBACKUP_*
// environment variables, and built-in defaults.
type Settings struct {
	ConfigPath    string
	OutputDir     string
	Compress      bool
	RetentionDays int

	S3       *S3Settings
	Telegram *TelegramSettings
}

// S3Settings configures the optional offsite copy of completed dumps. When
// AccessKey is empty the SDK's default credential chain is used.
type S3Settings struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// TelegramSettings configures the optional batch summary notification.
type TelegramSettings struct {
	BotToken string
	ChatID   string
}
