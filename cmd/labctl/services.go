package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lever-lab/backend/internal/bootstrap"
	"github.com/lever-lab/backend/pkg/config"
	"github.com/lever-lab/backend/pkg/logger"
)

// openServices loads configuration and builds the service graph. Logs go to
// stderr so command output stays machine readable.
func openServices() (*bootstrap.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return bootstrap.New(cfg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
