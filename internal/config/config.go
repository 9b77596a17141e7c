package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	OpencastServer   string        `toml:"opencast_server"`
	OpencastUser     string        `toml:"opencast_user"`
	OpencastPassword string        `toml:"opencast_password"`
	Workflow         string        `toml:"workflow"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	IngestTimeout    time.Duration `toml:"ingest_timeout"`

	EventReadRoles   string `toml:"event_read_roles"`
	EventWriteRoles  string `toml:"event_write_roles"`
	SeriesReadRoles  string `toml:"series_read_roles"`
	SeriesWriteRoles string `toml:"series_write_roles"`

	UseSharedNotesForDescription    bool `toml:"use_shared_notes_for_description"`
	CreateSeriesIfMissing           bool `toml:"create_series_if_missing"`
	PassIdentifierAsDCSource        bool `toml:"pass_identifier_as_dc_source"`
	OnlyIngestIfRecordButtonPressed bool `toml:"only_ingest_if_record_button_pressed"`
	ReuseConvertedVideos            bool `toml:"reuse_converted_videos"`
	DeleteRawOnFailure              bool `toml:"delete_raw_on_failure"`

	RawArchiveDir    string   `toml:"raw_archive_dir"`
	FFmpegPath       string   `toml:"ffmpeg_path"`
	FFprobePath      string   `toml:"ffprobe_path"`
	ConvertPath      string   `toml:"convert_path"`
	DeleteRawCommand []string `toml:"delete_raw_command"`

	NatsURL     string `toml:"nats_url"`
	NatsToken   string `toml:"nats_token"`
	DatabaseURL string `toml:"database_url"`
	LogLevel    string `toml:"log_level"`
	LogFile     string `toml:"log_file"`
}

func defaults() Config {
	return Config{
		OpencastServer:   "http://localhost:8080",
		OpencastUser:     "admin",
		OpencastPassword: "opencast",
		Workflow:         "bbb-upload",
		RequestTimeout:   10 * time.Second,
		IngestTimeout:    6000 * time.Second,
		EventReadRoles:   "ROLE_OAUTH_USER",
		RawArchiveDir:    "/var/bigbluebutton/recording/raw",
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		ConvertPath:      "convert",
		DeleteRawCommand: []string{"sudo", "bbb-record", "--delete"},
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by POSTARCHIVE_CONFIG and the environment, in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("POSTARCHIVE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	cfg.OpencastServer = envStr("OPENCAST_SERVER", cfg.OpencastServer)
	cfg.OpencastUser = envStr("OPENCAST_USER", cfg.OpencastUser)
	cfg.OpencastPassword = envStr("OPENCAST_PASSWORD", cfg.OpencastPassword)
	cfg.Workflow = envStr("OPENCAST_WORKFLOW", cfg.Workflow)
	cfg.RequestTimeout = envDuration("OPENCAST_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.IngestTimeout = envDuration("OPENCAST_INGEST_TIMEOUT", cfg.IngestTimeout)

	cfg.EventReadRoles = envStr("POSTARCHIVE_EVENT_READ_ROLES", cfg.EventReadRoles)
	cfg.EventWriteRoles = envStr("POSTARCHIVE_EVENT_WRITE_ROLES", cfg.EventWriteRoles)
	cfg.SeriesReadRoles = envStr("POSTARCHIVE_SERIES_READ_ROLES", cfg.SeriesReadRoles)
	cfg.SeriesWriteRoles = envStr("POSTARCHIVE_SERIES_WRITE_ROLES", cfg.SeriesWriteRoles)

	cfg.UseSharedNotesForDescription = envBool("POSTARCHIVE_USE_SHARED_NOTES", cfg.UseSharedNotesForDescription)
	cfg.CreateSeriesIfMissing = envBool("POSTARCHIVE_CREATE_SERIES", cfg.CreateSeriesIfMissing)
	cfg.PassIdentifierAsDCSource = envBool("POSTARCHIVE_IDENTIFIER_AS_SOURCE", cfg.PassIdentifierAsDCSource)
	cfg.OnlyIngestIfRecordButtonPressed = envBool("POSTARCHIVE_REQUIRE_RECORD_BUTTON", cfg.OnlyIngestIfRecordButtonPressed)
	cfg.ReuseConvertedVideos = envBool("POSTARCHIVE_REUSE_CONVERTED", cfg.ReuseConvertedVideos)
	cfg.DeleteRawOnFailure = envBool("POSTARCHIVE_DELETE_RAW_ON_FAILURE", cfg.DeleteRawOnFailure)

	cfg.RawArchiveDir = envStr("POSTARCHIVE_RAW_DIR", cfg.RawArchiveDir)
	cfg.FFmpegPath = envStr("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = envStr("FFPROBE_PATH", cfg.FFprobePath)
	cfg.ConvertPath = envStr("CONVERT_PATH", cfg.ConvertPath)

	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envStr("POSTARCHIVE_LOG_FILE", cfg.LogFile)

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
