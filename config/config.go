package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transport names accepted in TRANSPORT
const (
	TransportRealtime = "realtime"
	TransportWhatsapp = "whatsapp"
)

// Config struct to hold the configuration
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	StoreDir string `envconfig:"STORE_DIR" default:"./store"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Transport   string `envconfig:"TRANSPORT" default:"realtime"`
	RealtimeURL string `envconfig:"REALTIME_URL"`

	APIBaseURL     string   `envconfig:"API_BASE_URL"`
	APIAccessToken string   `envconfig:"API_ACCESS_TOKEN"`
	ConseillerID   string   `envconfig:"CONSEILLER_ID"`
	TrackedJeunes  []string `envconfig:"TRACKED_JEUNES"`

	SoundNotifications bool `envconfig:"SOUND_NOTIFICATIONS" default:"true"`
	FlaggedFirst       bool `envconfig:"FLAGGED_FIRST" default:"true"`

	BridgeAPIURL string `envconfig:"BRIDGE_API_URL" default:"http://localhost:8080/api"`
}

// Load function to load the configuration from the environment variables
func Load() (Config, error) {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("No .env file found")
	}

	var c Config
	err = envconfig.Process("", &c)
	if err != nil {
		return Config{}, fmt.Errorf("unable to get envconfig: %w", err)
	}

	return c, nil
}

// Validate checks the transport settings. Only the bridge needs them.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportRealtime:
		if strings.TrimSpace(c.RealtimeURL) == "" {
			return fmt.Errorf("REALTIME_URL is required when TRANSPORT is %q", TransportRealtime)
		}
		if strings.TrimSpace(c.APIBaseURL) == "" {
			return fmt.Errorf("API_BASE_URL is required when TRANSPORT is %q", TransportRealtime)
		}
	case TransportWhatsapp:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	return nil
}
