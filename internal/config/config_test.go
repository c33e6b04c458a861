// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgentConfig(t *testing.T) {
	configPath := writeConfig(t, "agent.yaml", `
collector_url: "https://collector.internal:9311/ingest"
poll_interval: 5m
state_file: /var/lib/rowdelta/epoch
host_identifier: "test-host"
tls_skip_verify: true
queries:
  - name: listening_ports
    command: ["/usr/local/bin/ports-json"]
    columns: [pid, port, protocol]
  - name: users
    command: ["/usr/local/bin/users-json", "--all"]
    format: events
`)

	t.Setenv("ROWDELTA_API_KEY", "test-key")

	cfg, err := LoadAgentConfig(configPath)
	if err != nil {
		t.Fatalf("LoadAgentConfig failed: %v", err)
	}

	if cfg.CollectorURL != "https://collector.internal:9311/ingest" {
		t.Errorf("CollectorURL = %q, want %q", cfg.CollectorURL, "https://collector.internal:9311/ingest")
	}
	if cfg.PollInterval.String() != "5m0s" {
		t.Errorf("PollInterval = %v, want 5m0s", cfg.PollInterval)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want default 30s", cfg.CommandTimeout)
	}
	if cfg.HostIdentifier != "test-host" {
		t.Errorf("HostIdentifier = %q, want %q", cfg.HostIdentifier, "test-host")
	}
	if len(cfg.Queries) != 2 {
		t.Fatalf("Queries count = %d, want 2", len(cfg.Queries))
	}
	if got := strings.Join(cfg.Queries[0].Columns, ","); got != "pid,port,protocol" {
		t.Errorf("Queries[0].Columns = %q, want pid,port,protocol", got)
	}
	if cfg.Queries[0].Format != FormatBatch {
		t.Errorf("Queries[0].Format = %q, want default %q", cfg.Queries[0].Format, FormatBatch)
	}
	if cfg.Queries[1].Format != FormatEvents {
		t.Errorf("Queries[1].Format = %q, want %q", cfg.Queries[1].Format, FormatEvents)
	}
}

func TestLoadAgentConfigEnvOverride(t *testing.T) {
	configPath := writeConfig(t, "agent.yaml", `
collector_url: "https://collector.internal:9311/ingest"
host_identifier: "from-file"
`)

	t.Setenv("ROWDELTA_API_KEY", "test-secret")
	t.Setenv("ROWDELTA_HOST_IDENTIFIER", "from-env")

	cfg, err := LoadAgentConfig(configPath)
	if err != nil {
		t.Fatalf("LoadAgentConfig failed: %v", err)
	}

	if cfg.APIKey != "test-secret" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "test-secret")
	}
	if cfg.HostIdentifier != "from-env" {
		t.Errorf("HostIdentifier = %q, want %q", cfg.HostIdentifier, "from-env")
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want default 1m", cfg.PollInterval)
	}
}

func TestLoadAgentConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no collector", `queries: []`, "collector_url"},
		{"unnamed query", "collector_url: x\nqueries:\n  - command: [a]\n", "name is required"},
		{"no command", "collector_url: x\nqueries:\n  - name: a\n", "command is required"},
		{"duplicate", "collector_url: x\nqueries:\n  - {name: a, command: [a]}\n  - {name: a, command: [b]}\n", "duplicate"},
		{"bad format", "collector_url: x\nqueries:\n  - {name: a, command: [a], format: csv}\n", "unknown format"},
	}

	for _, tt := range tests {
		_, err := LoadAgentConfig(writeConfig(t, "agent.yaml", tt.content))
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error = %v, want containing %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestLoadCollectorConfig(t *testing.T) {
	configPath := writeConfig(t, "collector.yaml", `
listen_addr: ":9311"
db_path: /var/lib/rowdelta/results.db
max_payload_bytes: 2097152
tls_cert: /etc/rowdelta/tls/cert.pem
tls_key: /etc/rowdelta/tls/key.pem
log_level: debug
`)

	t.Setenv("ROWDELTA_API_KEY", "test-api-key")

	cfg, err := LoadCollectorConfig(configPath)
	if err != nil {
		t.Fatalf("LoadCollectorConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":9311" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9311")
	}
	if cfg.MaxPayloadBytes != 2097152 {
		t.Errorf("MaxPayloadBytes = %d, want %d", cfg.MaxPayloadBytes, 2097152)
	}
	if cfg.DedupCacheSize != 4096 {
		t.Errorf("DedupCacheSize = %d, want default 4096", cfg.DedupCacheSize)
	}
	if cfg.APIKey != "test-api-key" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "test-api-key")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadCollectorConfigRequiresDBPath(t *testing.T) {
	t.Setenv("ROWDELTA_API_KEY", "test-api-key")
	_, err := LoadCollectorConfig(writeConfig(t, "collector.yaml", `listen_addr: ":9311"`))
	if err == nil || !strings.Contains(err.Error(), "db_path") {
		t.Fatalf("error = %v, want missing db_path", err)
	}
}

func TestLoadCollectorConfigRequiresAPIKey(t *testing.T) {
	// An empty key would accept a bare "Bearer " header
	t.Setenv("ROWDELTA_API_KEY", "")
	_, err := LoadCollectorConfig(writeConfig(t, "collector.yaml", "db_path: /tmp/results.db\n"))
	if err == nil || !strings.Contains(err.Error(), "ROWDELTA_API_KEY") {
		t.Fatalf("error = %v, want missing API key", err)
	}
}
