package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hamyarlab/yadavar/internal/config"
	"github.com/hamyarlab/yadavar/internal/gateway"
	"github.com/hamyarlab/yadavar/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "yadavar",
	Short: "yadavar - Persian-language reminder bot for Telegram",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (channels + dialogue + dispatcher)",
	RunE:  runBot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show yadavar status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'yadavar onboard' or set YADAVAR_API_KEY / OPENAI_API_KEY")
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram not configured. Set the token in %s or via YADAVAR_TELEGRAM_TOKEN", config.ConfigPath())
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the telegram token and API key\n", cfgPath)
	fmt.Println("  2. Or set YADAVAR_TELEGRAM_TOKEN and YADAVAR_API_KEY environment variables")
	fmt.Println("  3. Run 'yadavar run' to start the bot")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s (stt: %s)\n", cfg.Provider.Model, cfg.Provider.STTModel)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Timezone: %s\n", cfg.Dialogue.Timezone)
	fmt.Printf("Dispatch: every %s, batch %d\n", cfg.Dispatch.TickInterval, cfg.Dispatch.BatchSize)
	fmt.Printf("Payment: enabled=%v\n", cfg.Payment.Enabled)

	dbPath := cfg.Store.DBPath
	if dbPath == "" {
		fmt.Println("Store: default path (not created yet)")
		return nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Printf("Store: %s (not created yet)\n", dbPath)
		return nil
	}

	st, err := store.Open(dbPath, cfg.Limits.FreeMaxReminders)
	if err != nil {
		fmt.Printf("Store: error (%v)\n", err)
		return nil
	}
	defer st.Close()
	fmt.Printf("Store: %s\n", dbPath)

	return nil
}
