package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/internal/env"
	"github.com/mokomull/x11-client/storage"
	"github.com/mokomull/x11-client/transport"
)

var (
	// "unix" or "tcp"
	network string

	// The socket path or host:port to accept clients on
	address string

	// The host:port to listen for http requests on
	httpAddress string

	reuseport    bool
	numListeners int
	rejectReason string
	trace        bool
)

func init() {
	flags := EmulateCmd.PersistentFlags()

	flags.StringVar(&network, "network", "unix", `The network to accept clients on, "unix" or "tcp"`)
	flags.StringVarP(&address, "address", "a", "/tmp/.X11-unix/X9", "The socket path or host:port to accept clients on")
	flags.StringVar(&httpAddress, "http-address", "127.0.0.1:7362", "The address to listen to HTTP requests on")
	flags.BoolVar(&reuseport, "reuseport", false, "Start one TCP listener per CPU sharing the address")
	flags.IntVar(&numListeners, "listeners", 0, "The number of TCP listeners with --reuseport, defaults to the number of CPUs")
	flags.StringVar(&rejectReason, "reject", "", "Refuse every connection with this reason")
	flags.BoolVar(&trace, "trace", false, "Log every request body")
}

var EmulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run a display server emulator",
	Long: `Run a display server emulator

It answers the handshake, keeps the windows and graphics contexts clients
create, and sends back Expose events and error records. The HTTP server
exposes the announcement, the resource table and Prometheus metrics.

Usage
	x11-client emulate
	DISPLAY=/tmp/.X11-unix/X9 x11-client window

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf)
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		if network == "unix" {
			if err := os.MkdirAll(filepath.Dir(address), 0o755); err != nil {
				return err
			}
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		store := storage.NewInmemoryStore()
		defer store.Close()

		server := transport.NewServer(transport.Options{
			Network:      network,
			Address:      address,
			Reuseport:    reuseport,
			NumListeners: numListeners,
			RejectReason: rejectReason,
			Trace:        trace,
			Store:        store,
			Metrics:      transport.NewMetrics(registry),
			Log:          log.Named("transport"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		s := &http.Server{
			Addr:    httpAddress,
			Handler: NewDebugRouter(server, registry, conf.DebugHTTP, log.Named("http")),
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.String("network", network),
			zap.Stringer("address", server.Addr()),
			zap.String("httpAddress", httpAddress))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The HTTP server has 5 seconds to finish the request it is
		// currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := server.Close(); err != nil {
			log.Error("Emulator forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// NewDebugRouter serves the emulator's state over HTTP:
//
//	GET /ping
//	GET /setup             the announcement template
//	GET /resources?path=   the resource table, or the value at a gjson path
//	GET /metrics
func NewDebugRouter(server *transport.Server, registry *prometheus.Registry, debugHTTP bool, log *zap.Logger) *gin.Engine {
	r := setupRouter(debugHTTP, log)

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/setup", func(c *gin.Context) {
		c.JSON(http.StatusOK, server.Setup())
	})

	r.GET("/resources", func(c *gin.Context) {
		b, err := server.Resources().Store().Backup()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}

		if path := c.Query("path"); path != "" {
			res := gjson.GetBytes(b, path)
			if !res.Exists() {
				c.JSON(http.StatusNotFound, gin.H{"error": "nothing at " + path})
				return
			}

			b = []byte(res.Raw)
		}

		c.Data(http.StatusOK, "application/json", b)
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs every request except the health checks, RFC3339 in UTC.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
