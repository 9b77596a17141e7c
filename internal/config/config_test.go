package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"POSTARCHIVE_CONFIG", "OPENCAST_SERVER", "OPENCAST_USER", "OPENCAST_PASSWORD",
	"OPENCAST_WORKFLOW", "OPENCAST_REQUEST_TIMEOUT", "OPENCAST_INGEST_TIMEOUT",
	"POSTARCHIVE_EVENT_READ_ROLES", "POSTARCHIVE_EVENT_WRITE_ROLES",
	"POSTARCHIVE_SERIES_READ_ROLES", "POSTARCHIVE_SERIES_WRITE_ROLES",
	"POSTARCHIVE_USE_SHARED_NOTES", "POSTARCHIVE_CREATE_SERIES",
	"POSTARCHIVE_IDENTIFIER_AS_SOURCE", "POSTARCHIVE_REQUIRE_RECORD_BUTTON",
	"POSTARCHIVE_REUSE_CONVERTED", "POSTARCHIVE_DELETE_RAW_ON_FAILURE",
	"POSTARCHIVE_RAW_DIR", "FFMPEG_PATH", "FFPROBE_PATH", "CONVERT_PATH",
	"NATS_URL", "NATS_TOKEN", "DATABASE_URL", "LOG_LEVEL", "POSTARCHIVE_LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Workflow != "bbb-upload" {
		t.Errorf("expected default workflow bbb-upload, got %s", cfg.Workflow)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("expected 10s request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.IngestTimeout != 6000*time.Second {
		t.Errorf("expected 6000s ingest timeout, got %s", cfg.IngestTimeout)
	}
	if cfg.EventReadRoles != "ROLE_OAUTH_USER" {
		t.Errorf("expected default event read role, got %q", cfg.EventReadRoles)
	}
	if cfg.SeriesReadRoles != "" || cfg.SeriesWriteRoles != "" {
		t.Errorf("expected empty default series roles, got %q/%q", cfg.SeriesReadRoles, cfg.SeriesWriteRoles)
	}
	if cfg.OnlyIngestIfRecordButtonPressed || cfg.DeleteRawOnFailure {
		t.Error("expected feature flags off by default")
	}
	if cfg.RawArchiveDir != "/var/bigbluebutton/recording/raw" {
		t.Errorf("unexpected raw dir %s", cfg.RawArchiveDir)
	}
	if len(cfg.DeleteRawCommand) != 3 || cfg.DeleteRawCommand[1] != "bbb-record" {
		t.Errorf("unexpected delete command %v", cfg.DeleteRawCommand)
	}
	if cfg.NatsURL != "" || cfg.DatabaseURL != "" {
		t.Error("expected optional sinks to be disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENCAST_SERVER", "https://oc.example.org")
	t.Setenv("OPENCAST_USER", "ingest")
	t.Setenv("OPENCAST_PASSWORD", "s3cr3t")
	t.Setenv("OPENCAST_WORKFLOW", "schedule-and-upload")
	t.Setenv("OPENCAST_REQUEST_TIMEOUT", "30s")
	t.Setenv("OPENCAST_INGEST_TIMEOUT", "120")
	t.Setenv("POSTARCHIVE_REQUIRE_RECORD_BUTTON", "true")
	t.Setenv("POSTARCHIVE_CREATE_SERIES", "1")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OpencastServer != "https://oc.example.org" || cfg.OpencastUser != "ingest" || cfg.OpencastPassword != "s3cr3t" {
		t.Errorf("unexpected server settings %+v", cfg)
	}
	if cfg.Workflow != "schedule-and-upload" {
		t.Errorf("expected custom workflow, got %s", cfg.Workflow)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.RequestTimeout)
	}
	if cfg.IngestTimeout != 120*time.Second {
		t.Errorf("expected plain seconds to be accepted, got %s", cfg.IngestTimeout)
	}
	if !cfg.OnlyIngestIfRecordButtonPressed || !cfg.CreateSeriesIfMissing {
		t.Error("expected flags to be enabled")
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Errorf("expected custom nats url, got %s", cfg.NatsURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.LogLevel)
	}
}

func TestLoad_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENCAST_REQUEST_TIMEOUT", "soon")
	t.Setenv("POSTARCHIVE_CREATE_SERIES", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("expected default timeout on invalid value, got %s", cfg.RequestTimeout)
	}
	if cfg.CreateSeriesIfMissing {
		t.Error("expected default flag on invalid value")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "postarchive.toml")
	content := `
opencast_server = "https://file.example.org"
workflow = "from-file"
request_timeout = "45s"
create_series_if_missing = true
series_read_roles = "ROLE_STUDENT"
delete_raw_command = ["bbb-record", "--delete"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POSTARCHIVE_CONFIG", path)
	t.Setenv("OPENCAST_WORKFLOW", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpencastServer != "https://file.example.org" {
		t.Errorf("expected server from file, got %s", cfg.OpencastServer)
	}
	if cfg.Workflow != "from-env" {
		t.Errorf("expected env to win over file, got %s", cfg.Workflow)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("expected timeout from file, got %s", cfg.RequestTimeout)
	}
	if !cfg.CreateSeriesIfMissing || cfg.SeriesReadRoles != "ROLE_STUDENT" {
		t.Errorf("expected series settings from file, got %+v", cfg)
	}
	if len(cfg.DeleteRawCommand) != 2 {
		t.Errorf("expected delete command from file, got %v", cfg.DeleteRawCommand)
	}
	if cfg.OpencastUser != "admin" {
		t.Errorf("expected defaults for keys absent from file, got %s", cfg.OpencastUser)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "broken.toml")
	os.WriteFile(path, []byte("workflow = "), 0o600)
	t.Setenv("POSTARCHIVE_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
