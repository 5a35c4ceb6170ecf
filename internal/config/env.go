package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables consulted for notification credentials.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// ApplyEnv fills credentials missing from the file from the environment,
// loading the given dotenv files first (best-effort, existing variables win).
func (c *Config) ApplyEnv(dotenv ...string) {
	_ = godotenv.Load(dotenv...)
	if c.Notify.TelegramToken == "" {
		c.Notify.TelegramToken = os.Getenv(EnvTelegramToken)
	}
	if c.Notify.TelegramChatID == "" {
		c.Notify.TelegramChatID = os.Getenv(EnvTelegramChatID)
	}
}
