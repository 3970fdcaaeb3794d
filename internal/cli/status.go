package cli

import (
	"fmt"
	"os"

	"github.com/ThreadClaw/ThreadClaw/internal/config"
	"github.com/ThreadClaw/ThreadClaw/internal/session"
	"github.com/ThreadClaw/ThreadClaw/internal/store"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ ThreadClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🛠️ ThreadClaw Init")
		path := config.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Println("Config already exists: " + path)
			return
		}
		if err := config.Save(config.DefaultConfig()); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Wrote " + path)
		fmt.Println("Set slack.bot_token and slack.app_token, then run 'threadclaw run'.")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 ThreadClaw Status")
		fmt.Printf("Version: %s\n", version)

		configPath := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (run 'threadclaw init' first)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config load error: %v\n", err)
			return
		}
		if cfg.Slack.BotToken != "" && cfg.Slack.AppToken != "" {
			fmt.Println("Slack:   ✓ Tokens configured")
		} else {
			fmt.Println("Slack:   ✗ Tokens missing")
		}
		fmt.Printf("Assistant: %s\n", cfg.Assistant.Command)

		if _, err := os.Stat(cfg.Paths.DBPath); err == nil {
			st, err := store.New(cfg.Paths.DBPath)
			if err == nil {
				defer st.Close()
				if totals, err := st.TurnTotals(); err == nil {
					fmt.Printf("Turns:   %d recorded ($%.4f, %d in / %d out tokens)\n",
						totals.Turns, totals.CostUSD, totals.InputTokens, totals.OutputTokens)
				}
				if pending, err := st.PendingApprovals(); err == nil && len(pending) > 0 {
					fmt.Printf("Approvals: %d pending\n", len(pending))
				}
				if turns, err := st.RecentTurns(store.TurnFilter{Limit: 5}); err == nil && len(turns) > 0 {
					fmt.Println("Recent turns:")
					for _, turn := range turns {
						fmt.Printf("  %s  %s  $%.4f\n",
							turn.CreatedAt.Format("2006-01-02 15:04"), turn.ConversationID, turn.CostUSD)
					}
				}
			}
		} else {
			fmt.Println("Turns:   none recorded yet")
		}

		infos := session.NewManager(cfg.Paths.SessionsDir).List()
		fmt.Printf("Sessions: %d\n", len(infos))
		for i, info := range infos {
			if i >= 5 {
				fmt.Printf("  … and %d more\n", len(infos)-i)
				break
			}
			fmt.Printf("  %s (updated %s)\n", info.Key, info.UpdatedAt.Format("2006-01-02 15:04"))
		}
	},
}
