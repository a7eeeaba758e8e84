package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/epd-weather/internal/config"
	"github.com/i474232898/epd-weather/internal/diagnostics"
	"github.com/i474232898/epd-weather/internal/logger"
	"github.com/i474232898/epd-weather/internal/weather/providers"
)

var (
	// Global flags
	verbose bool
	rssi    int
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "epd-weather",
	Short: "Open-Meteo forecast and air quality feed for e-paper displays",
	Long: `Fetches current, hourly and daily weather plus the US AQI from Open-Meteo
and turns them into fixed-size records for a display.

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	RootCmd.CompletionOptions.HiddenDefaultCmd = true

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Report caller information in logs")
	RootCmd.PersistentFlags().IntVar(&rssi, "rssi", 0, "Uplink signal strength in dBm to report with fetch errors (0 = unknown)")

	RootCmd.AddCommand(serveCmd, fetchCmd)
}

// setup loads configuration and initializes the logger. Logs go to logOut
// from the first line on, so commands that print data keep stdout clean.
func setup(logOut io.Writer) (*config.AppConfig, error) {
	logger.Init(&logger.Config{Level: logrus.InfoLevel, Format: "text", Output: logOut})

	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	logger.Init(&logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Format:  cfg.LogFormat,
		Verbose: verbose,
		Output:  logOut,
	})
	return cfg, nil
}

// clientOptions are appended to every client newClient builds. Set in tests.
var clientOptions []providers.Option

func newClient(cfg *config.AppConfig) *providers.OpenMeteoClient {
	var signal diagnostics.SignalReporter = diagnostics.NoSignal{}
	if rssi != 0 {
		signal = diagnostics.StaticSignal(rssi)
	}

	opts := []providers.Option{
		providers.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		providers.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		providers.WithSignalReporter(signal),
	}
	return providers.NewOpenMeteoClient(append(opts, clientOptions...)...)
}
