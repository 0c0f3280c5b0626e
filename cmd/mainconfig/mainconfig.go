package mainconfig

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/dental-agenda/internal/config"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// Load reads the given .env files (default ".env") into the environment,
// then loads configuration and builds the logger both binaries share.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (*appconfig.Config, *logging.Logger) {
	return LoadWithLogOutput(os.Stdout, envFiles...)
}

// LoadWithLogOutput is Load with logs sent to w, for binaries whose stdout
// carries their own output.
func LoadWithLogOutput(w io.Writer, envFiles ...string) (*appconfig.Config, *logging.Logger) {
	envErr := LoadEnvFiles(envFiles...)

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(cfg.LogLevel, w)
	if envErr != nil {
		logger.Warn("could not read env file", "error", envErr)
	}
	return cfg, logger
}

// LoadEnvFiles loads each existing file; missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}
