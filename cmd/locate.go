package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agriaid/location"
)

var locateJSON bool

func NewLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Print this device's approximate coordinates",
		Args:  cobra.NoArgs,
		RunE:  runLocate,
	}
	cmd.Flags().BoolVar(&locateJSON, "json", false, "Print coordinates as JSON")
	return cmd
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	svc, err := location.FromConfig(cfg.Location)
	if err != nil {
		return err
	}
	coords, err := svc.GetCurrentLocation(context.Background())
	if err != nil {
		printError(err.Error())
		return err
	}
	if locateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(coords)
	}
	printSuccess(fmt.Sprintf("%.4f, %.4f (source: %s)", coords.Latitude, coords.Longitude, coords.Source))
	if coords.City != "" {
		fmt.Printf("  %s, %s\n", coords.City, coords.Country)
	}
	return nil
}
