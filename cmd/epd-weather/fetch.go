package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/i474232898/epd-weather/internal/weather"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch forecast and air quality once and print them as JSON",
	Long: `Runs a single forecast fetch followed by a single air quality fetch for the
first configured location, the way the display does on wake-up, and prints the
parsed records on stdout. Logs and a failed endpoint go to stderr, and a
failure exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		client := newClient(cfg)
		loc := cfg.Locations[0]
		ctx := cmd.Context()

		forecast, err := client.FetchForecast(ctx, loc, cfg.Fetch)
		if err != nil {
			return errors.Wrap(err, "forecast")
		}

		air, err := client.FetchAirQuality(ctx, loc, cfg.Fetch)
		if err != nil {
			return errors.Wrap(err, "air quality")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Forecast   weather.ForecastResponse   `json:"forecast"`
			AirQuality weather.AirQualityResponse `json:"airQuality"`
		}{forecast, air})
	},
}
