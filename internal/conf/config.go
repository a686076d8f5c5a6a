// config.go: settings struct and functions to load and save the application configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// IdentificationConfig contains the decision policy of the identification
// pipeline. Every threshold the pipeline consults is enumerated here rather
// than looked up ad hoc at call sites.
type IdentificationConfig struct {
	DetectorConfidenceFloor float64 // crops below this detector confidence are rejected before retrieval
	TopK                    int     // shortlist size requested from the retriever
	MinSimilarity           float64 // candidates below this cosine similarity are excluded
	HighConfidence          float64 // top-1 similarity at or above this may skip the oracle
	SeparationMargin        float64 // required margin of top-1 over top-2 to skip the oracle
}

// OracleConfig contains settings for the vision-language confirmation oracle.
type OracleConfig struct {
	Endpoint       string        // base URL of an OpenAI-compatible chat completions API
	Model          string        // model name passed in the request
	APIKey         string        // bearer token, empty for unauthenticated local servers
	Timeout        time.Duration // per-call timeout
	MaxAttempts    int           // bounded retry attempts on transport failure
	InitialBackoff time.Duration // first retry delay, doubled per attempt
}

// CatalogConfig contains settings for the catalog embedding index.
type CatalogConfig struct {
	Path      string // path to the published catalog snapshot (JSON)
	Dimension int    // expected embedding dimensionality, 0 = take from snapshot
}

// TrainingConfig contains the retrain policy and trainer settings.
type TrainingConfig struct {
	MinSamples      int           // training refuses to run below this sample count
	RetrainInterval time.Duration // retrain when this much time has passed since trained_at
	SampleDelta     int           // retrain when this many new samples accumulated
	HoldoutFraction float64       // held-out split used for the metric snapshot
	WindowDays      int           // feature window length in days
	Epochs          int           // gradient descent epochs
	LearningRate    float64       // gradient descent step size
}

// PredictionConfig contains settings for probability serving.
type PredictionConfig struct {
	CacheTTL time.Duration // probability cache lifetime
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // Path to the log file
}

// Settings contains all configuration options for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this node, used to identify the source of detections
		Log  LogConfig // logging configuration
	}

	Identification IdentificationConfig // identification pipeline decision policy
	Oracle         OracleConfig         // confirmation oracle settings
	Catalog        CatalogConfig        // catalog embedding index settings
	Training       TrainingConfig       // retrain policy
	Prediction     PredictionConfig     // probability serving settings

	WebServer struct {
		Debug   bool   // true to enable debug mode
		Enabled bool   // true to enable web server
		Port    string // port for web server
	}

	Output struct {
		SQLite SQLiteConfig // sqlite output settings
		MySQL  MySQLConfig  // mysql output settings
	}
}

// SQLiteConfig contains settings for the SQLite output backend.
type SQLiteConfig struct {
	Enabled bool   // true to enable sqlite output
	Path    string // path to sqlite database
}

// MySQLConfig contains settings for the MySQL output backend.
type MySQLConfig struct {
	Enabled  bool   // true to enable mysql output
	Username string // username for mysql database
	Password string // password for mysql database
	Database string // database name for mysql database
	Host     string // host for mysql database
	Port     string // port for mysql database
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the ordered list of directories searched for
// the config file.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user home directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, ".config", "reduced-predictor"),
		".",
	}, nil
}

// FindConfigFile locates the active config file on disk.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, path := range configPaths {
		candidate := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("config file not found in %v", configPaths)
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
// It uses SaveYAMLConfig to handle the atomic write process.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write the YAML data to a temporary file first so the replace is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
