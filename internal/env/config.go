package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/mokomull/x11-client/protocol"
)

type Config struct {
	// Display name, for example ":0", "host:1.0" or "/tmp/.X11-unix/X0"
	Display string `env:"DISPLAY"`

	// "big" or "little"
	ByteOrder string `env:"X11_BYTE_ORDER,default=big"`

	AuthName string `env:"X11_AUTH_NAME"`
	AuthData string `env:"X11_AUTH_DATA"`

	LogLevel  string `env:"X11_LOG_LEVEL,default=info"`
	LogFormat string `env:"X11_LOG_FORMAT,default=json"`
	LogFile   string `env:"X11_LOG_FILE"`

	DebugHTTP bool `env:"X11_DEBUG_HTTP"`
}

// LoadConfig reads .env.local, if there is one, and then the process
// environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

func LoadConfigFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Order() (protocol.ByteOrder, error) {
	return protocol.ParseByteOrder(c.ByteOrder)
}
