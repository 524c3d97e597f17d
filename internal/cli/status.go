package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daijinru/wenko/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ wenko Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 wenko Status")
		fmt.Printf("Version: %s\n", version)

		cfgPath, _ := config.ConfigPath()
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + cfgPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (defaults in effect)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  load warning: %v\n", err)
			cfg = config.DefaultConfig()
		}
		if cfg.Provider.APIKey != "" {
			fmt.Println("API key: ✓ Configured")
		} else {
			fmt.Println("API key: ✗ Missing (set OPENAI_API_KEY)")
		}
		fmt.Printf("Model:   %s\n", cfg.Model.Name)
		fmt.Printf("State:   %s\n", cfg.Paths.StateDB)

		rt, err := buildRuntime(false)
		if err != nil {
			fmt.Printf("Core:    ✗ %v\n", err)
			return
		}
		fmt.Printf("Convos:  %d stored\n", len(rt.sessions.List()))
	},
}
