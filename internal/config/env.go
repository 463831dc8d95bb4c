package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order. Variables already present in the process
// environment, or set by an earlier file, are not overwritten.
var envFiles = []string{".env", ".env.local"}

func loadEnvFiles() error {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
