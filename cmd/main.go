package main

import (
	"os"

	_ "tasmota_mqtt/docs"

	"github.com/spf13/cobra"
)

// @title                       Tasmota relay service
// @version                     1.0
// @description                 Switches Tasmota MQTT plugs around a 3D printer and powers them off when the printer is idle.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

var configDir string

var rootCmd = &cobra.Command{
	Use:          "tasmota-relayd",
	Short:        "Tasmota MQTT relay lifecycle service",
	Long:         "Runs the relay command API, tracks plug state over MQTT and powers relays off when the printer has been idle.",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "directory holding config.yml")
	rootCmd.AddCommand(serveCmd, relaysCmd, settingsCmd, usersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
