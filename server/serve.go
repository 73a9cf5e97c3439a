package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/docker/go-metrics"
	gorhandlers "github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/keldcache/keld/configuration"
	"github.com/keldcache/keld/internal/kcontext"
	"github.com/keldcache/keld/version"
)

// defaultLogFormatter is the default formatter to use for logs.
const defaultLogFormatter = "text"

// ServeCmd is a cobra command for running the cache server.
var ServeCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "`serve` runs the cache server",
	Long:  "`serve` runs the cache server.",
	Run: func(cmd *cobra.Command, args []string) {
		// setup context
		ctx := kcontext.WithVersion(kcontext.Background(), version.Version())

		config, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			// nolint:errcheck
			cmd.Usage()
			os.Exit(1)
		}

		ctx, err = configureLogging(ctx, config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error configuring logging: %v\n", err)
			os.Exit(1)
		}

		server, err := NewServer(ctx, config)
		if err != nil {
			logrus.Fatalln(err)
		}

		configureDebugServer(config)

		if err := server.ListenAndServe(ctx); err != nil {
			logrus.Fatalln(err)
		}
	},
}

func resolveConfiguration(args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("KELD_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("KELD_CONFIGURATION_PATH")
	}

	if configurationPath == "" {
		return nil, fmt.Errorf("configuration path unspecified")
	}

	fp, err := os.Open(configurationPath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	config, err := configuration.Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %v", configurationPath, err)
	}

	return config, nil
}

func configureLogging(ctx context.Context, config *configuration.Configuration) (context.Context, error) {
	logrus.SetLevel(logLevel(config.Log.Level))

	formatter := config.Log.Formatter
	if formatter == "" {
		formatter = defaultLogFormatter
	}

	switch formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   time.RFC3339Nano,
			DisableHTMLEscape: true,
		})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return ctx, fmt.Errorf("unsupported logging formatter: %q", formatter)
	}

	logrus.Debugf("using %q logging formatter", formatter)
	if len(config.Log.Fields) > 0 {
		// build up the static fields, if present.
		var fields []interface{}
		for k := range config.Log.Fields {
			fields = append(fields, k)
		}

		ctx = kcontext.WithValues(ctx, config.Log.Fields)
		ctx = kcontext.WithLogger(ctx, kcontext.GetLogger(ctx, fields...))
	}

	kcontext.SetDefaultLogger(kcontext.GetLogger(ctx))
	return ctx, nil
}

func logLevel(level configuration.Loglevel) logrus.Level {
	l, err := logrus.ParseLevel(string(level))
	if err != nil {
		l = logrus.InfoLevel
		logrus.Warnf("error parsing level %q: %v, using %q", level, err, l)
	}

	return l
}

// configureDebugServer starts the private debug endpoint when an address
// is configured. It serves pprof and, when enabled, prometheus metrics.
func configureDebugServer(config *configuration.Configuration) {
	if config.Debug.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if config.Debug.Prometheus.Enabled {
		path := config.Debug.Prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		logrus.Info("providing prometheus metrics on ", path)
		mux.Handle(path, metrics.Handler())
	}

	handler := gorhandlers.RecoveryHandler()(gorhandlers.CombinedLoggingHandler(logrus.StandardLogger().Writer(), mux))

	go func(addr string) {
		logrus.Infof("debug server listening %v", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			logrus.Fatalf("error listening on debug interface: %v", err)
		}
	}(config.Debug.Addr)
}
