package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// FTP contains connection settings for the template file server.
type FTP struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	TemplateRoot    string `toml:"template_root"`
	HeaderFooterDir string `toml:"header_footer_dir"`
	TransmittalDir  string `toml:"transmittal_dir"`
	SignatureDir    string `toml:"signature_dir"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Sheets contains configuration for the campaign/letter-type lookup sheet.
type Sheets struct {
	CredentialsFile string `toml:"credentials_file"`
	SpreadsheetID   string `toml:"spreadsheet_id"`
	SheetName       string `toml:"sheet_name"`
}

// Converter contains settings for the external document converter.
type Converter struct {
	Binary          string `toml:"binary"`
	BatchSize       int    `toml:"batch_size"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxRetries      int    `toml:"max_retries"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
	Workers         int    `toml:"workers"`
}

// Printing contains settings for direct-to-printer output.
type Printing struct {
	ListBinary     string `toml:"list_binary"`
	PrintBinary    string `toml:"print_binary"`
	DefaultPrinter string `toml:"default_printer"`
}

// Auth contains OAuth and session settings.
type Auth struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	AuthURL         string `toml:"auth_url"`
	TokenURL        string `toml:"token_url"`
	UserInfoURL     string `toml:"userinfo_url"`
	RedirectURL     string `toml:"redirect_url"`
	SessionTTLHours int    `toml:"session_ttl_hours"`
	AdminDomain     string `toml:"admin_domain"`
}

// Generation contains tunables for the document generation pipeline.
type Generation struct {
	ManifestPageSize            int `toml:"manifest_page_size"`
	SignatureFallbackDays       int `toml:"signature_fallback_days"`
	SessionSweepIntervalMinutes int `toml:"session_sweep_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dlgen.
//
// Configuration sections by subsystem:
//   - Paths: data, scratch, and log directories plus the API bind address
//   - FTP: template and signature retrieval from the file server
//   - Sheets: campaign to header/footer template lookup
//   - Converter: external PDF converter batching, timeout, and retry policy
//   - Printing: printer discovery and print submission binaries
//   - Auth: OAuth endpoints and session lifetime
//   - Generation: manifest pagination and session housekeeping
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	FTP        FTP        `toml:"ftp"`
	Sheets     Sheets     `toml:"sheets"`
	Converter  Converter  `toml:"converter"`
	Printing   Printing   `toml:"printing"`
	Auth       Auth       `toml:"auth"`
	Generation Generation `toml:"generation"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dlgen/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dlgen.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
