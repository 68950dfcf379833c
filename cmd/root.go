package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/client"
	"github.com/mokomull/x11-client/cmd/gen"
	"github.com/mokomull/x11-client/internal/env"
)

const connectTimeout = 10 * time.Second

var (
	// Overrides DISPLAY
	display string

	// Overrides X11_BYTE_ORDER
	byteOrder string
)

var RootCmd = &cobra.Command{
	Use:   "x11-client",
	Short: "A client for the X11 core protocol",
	Long: `A client for the X11 core protocol

It connects to a display server, reads its setup announcement, creates and
draws into windows, and can emulate a display server for testing.
`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&display, "display", "d", "", "The display to connect to, defaults to $DISPLAY")
	flags.StringVar(&byteOrder, "byte-order", "", `"big" or "little", defaults to $X11_BYTE_ORDER`)

	RootCmd.AddCommand(SetupCmd, WindowCmd, EmulateCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global flags on top.
func loadConfig(ctx context.Context) (*env.Config, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if display != "" {
		conf.Display = display
	}
	if byteOrder != "" {
		conf.ByteOrder = byteOrder
	}

	return conf, nil
}

// connect dials the configured display. The returned logger is the one the
// connection logs to.
func connect(ctx context.Context) (*client.Conn, *zap.Logger, error) {
	conf, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	log, err := env.MakeLogger(conf)
	if err != nil {
		return nil, nil, err
	}

	order, err := conf.Order()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := client.Dial(ctx, client.Options{
		Display:   conf.Display,
		ByteOrder: order,
		AuthName:  conf.AuthName,
		AuthData:  []byte(conf.AuthData),
		Log:       log,
	})
	if err != nil {
		log.Error("Failed to connect", zap.String("display", conf.Display), zap.Error(err))
		return nil, nil, err
	}

	return conn, log, nil
}
