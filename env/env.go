package env

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	DefaultEnvFile = ".env"
	// FileVar names an alternative dotenv file.
	FileVar = "ENV_FILE"
)

// InitConfig fills each config from the environment. Variables from the
// dotenv file never override ones already set.
func InitConfig(configs ...any) error {
	file := DefaultEnvFile
	if f := os.Getenv(FileVar); f != "" {
		file = f
	}
	// nolint:errcheck // .env file is optional, failure is acceptable
	_ = godotenv.Load(file)

	for _, config := range configs {
		if err := envconfig.Process("", config); err != nil {
			return errors.Wrap(err, "failed to envconfig.Process")
		}
	}

	return nil
}
