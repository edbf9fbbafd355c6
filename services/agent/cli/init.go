package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultAgentYAML = `# HyperOS Agent config
# Priority: CLI flag > this file > default.

log_level: "info"

http_addr:    ":8080"
metrics_addr: ":9091"

# --- External services ---
bridge_url:     "http://localhost:8700"          # desktop bridge (screen + input)
oracle_url:     "http://localhost:8701/v1/decide" # decision oracle
oracle_timeout: "30s"

# --- Task loop ---
max_steps:  20
step_delay: "1s"     # accepts Go duration strings: 500ms, 1s, 2s
max_retries: 3
base_delay:  "1s"

# --- Safety ---
screen_width:  1920
screen_height: 1080
rate_limit_requests: 10
rate_limit_window:   "1m"

# --- Oracle circuit breaker ---
breaker_failure_threshold: 5
breaker_recovery_timeout:  "60s"
breaker_success_threshold: 2

# --- Persistence ---
checkpoint_db:      "data/checkpoints.db"
checkpoint_max_age: "24h"
sweep_schedule:     "@hourly"
audit_dir:          "data/audit"

# otel_endpoint: "localhost:4318"  # uncomment to enable OpenTelemetry tracing
`

func newInitCmd(serviceName, defaultYAML string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/.hyperos/%s.yaml.
Fails if the file already exists unless --force is passed.`, serviceName, serviceName),
		RunE: func(_ *cobra.Command, _ []string) error {
			dest := cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ".hyperos", serviceName+".yaml")
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}

			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}

			if err := os.WriteFile(dest, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}
