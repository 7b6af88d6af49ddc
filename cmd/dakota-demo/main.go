// Command dakota-demo opens a window and presents a small declarative
// scene, replacing vala.go's SDL-based composition root with a cobra CLI
// and a GLFW-backed swapchain (ground: vala.go's main(), adapted per
// swapchain.VkSurface's GLFW wiring and vulkan-go-asche's instance/device
// bring-up order).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NOT-REAL-GAMES/dakota/cmd/dakota-demo/app"
)

var (
	scenePath  string
	fontPath   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "dakota-demo",
	Short: "Run a dakota scene in a window",
	Long:  "dakota-demo opens a window, loads a declarative scene document, and presents it until the window is closed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.DefaultConfig()
		if configPath != "" {
			loaded, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		return app.Run(cfg, scenePath, fontPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&scenePath, "scene", "s", "", "path to a declarative scene XML document (required)")
	rootCmd.Flags().StringVarP(&fontPath, "font", "f", "", "path to a TrueType/OpenType font used as the scene's default font (required)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a dakota.toml configuration file")
	rootCmd.MarkFlagRequired("scene")
	rootCmd.MarkFlagRequired("font")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
