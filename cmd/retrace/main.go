package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/config"
	"github.com/retracehq/retrace/internal/gateway"
	"github.com/retracehq/retrace/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "retrace",
	Short: "retrace - screen activity capture and recall",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the capture engine (capture + alerts + maintenance)",
	RunE:  runEngine,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about past activity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var historyCmd = &cobra.Command{
	Use:   "history [date]",
	Short: "List raw records for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and storage overview",
	RunE:  runStatus,
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Verify the configured model backend",
	RunE:  runSelfTest,
}

var exchangesCmd = &cobra.Command{
	Use:   "exchanges",
	Short: "Show recent model exchanges",
	RunE:  runExchanges,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named configuration profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := config.ListProfiles()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No profiles saved.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current configuration as a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.SaveProfile(args[0], cfg); err != nil {
			return err
		}
		fmt.Printf("Profile saved: %s\n", args[0])
		return nil
	},
}

var profileLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Apply a saved profile as the active configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadProfile(args[0])
		if err != nil {
			return err
		}
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Profile applied: %s\n", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DeleteProfile(args[0]); err != nil {
			return err
		}
		fmt.Printf("Profile deleted: %s\n", args[0])
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (e.g. capture.interval_ms 2000)",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var (
	queryRecordsFlag bool
	exchangesN       int
)

func init() {
	queryCmd.Flags().BoolVar(&queryRecordsFlag, "records", false, "Print matching records instead of asking the model")
	exchangesCmd.Flags().IntVarP(&exchangesN, "number", "n", 20, "Number of exchanges to show")
	profileCmd.AddCommand(profileListCmd, profileSaveCmd, profileLoadCmd, profileDeleteCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(runCmd, queryCmd, historyCmd, statusCmd, selftestCmd, exchangesCmd, profileCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newService() (*gateway.Service, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := gateway.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

func runEngine(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	return svc.Run(context.Background())
}

func runQuery(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	question := strings.Join(args, " ")
	if queryRecordsFlag {
		result, err := svc.Search(question)
		if err != nil {
			return err
		}
		fmt.Printf("Matched via %s: %d records, %d aggregated\n",
			result.Source, len(result.Records), len(result.Aggregated))
		for _, agg := range result.Aggregated {
			fmt.Printf("[%s ~ %s] %s\n", agg.StartTime, agg.EndTime, agg.Summary)
		}
		for _, r := range result.Records {
			fmt.Printf("[%s] %s\n", r.Timestamp, r.Summary)
		}
		return nil
	}

	answer, err := svc.Ask(context.Background(), question)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	date := time.Now().Format(store.DayLayout)
	if len(args) == 1 {
		date = args[0]
	}
	records, err := svc.History(date)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No records for %s.\n", date)
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("[%s] %s", r.Timestamp, r.Summary)
		if r.HasIssue {
			line += fmt.Sprintf(" (issue: %s)", r.IssueType)
		}
		fmt.Println(line)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data dir: %s\n", config.DataDir())
	fmt.Printf("Provider: %s\n", providerDisplay(cfg))
	if key := cfg.Model.API.APIKey; key != "" {
		fmt.Printf("API key: %s\n", maskKey(key))
	} else {
		fmt.Println("API key: not set")
	}
	fmt.Printf("Capture: enabled=%v interval=%dms skip_unchanged=%v threshold=%.2f\n",
		cfg.Capture.Enabled, cfg.Capture.IntervalMS,
		cfg.Capture.SkipUnchangedEnabled(), cfg.Capture.ChangeThreshold)
	fmt.Printf("Retention: %d days, max %d screenshots\n",
		cfg.Storage.RetentionDays, cfg.Storage.MaxScreenshots)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Notify.Telegram.Enabled)

	st, err := store.New(config.DataDir())
	if err != nil {
		return err
	}
	days, err := st.Days()
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Println("Storage: empty")
		return nil
	}
	total := 0
	for _, day := range days {
		records, err := st.Summaries(day)
		if err != nil {
			continue
		}
		total += len(records)
	}
	fmt.Printf("Storage: %d records across %d days (%s .. %s)\n",
		total, len(days), days[0], days[len(days)-1])
	if today, err := st.Summaries(time.Now().Format(store.DayLayout)); err == nil && len(today) > 0 {
		last := today[len(today)-1]
		fmt.Printf("Latest: [%s] %s\n", last.Timestamp, last.Summary)
	}
	return nil
}

func providerDisplay(cfg *config.Config) string {
	if cfg.Model.Provider == "ollama" {
		return fmt.Sprintf("ollama (%s)", cfg.Model.Ollama.Model)
	}
	return fmt.Sprintf("%s (%s)", cfg.Model.API.Type, cfg.Model.API.Model)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	out, err := svc.SelfTest(ctx)
	if err != nil {
		return fmt.Errorf("selftest failed: %w", err)
	}
	fmt.Printf("Model backend OK (%s)\n", out)
	return nil
}

func runExchanges(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	exchanges, err := svc.RecentExchanges(exchangesN)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		fmt.Println("No exchanges recorded.")
		return nil
	}
	for _, e := range exchanges {
		status := "ok"
		if e.ErrorKind != "" {
			status = e.ErrorKind
		}
		fmt.Printf("[%s] %s %s %dms %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Provider, e.Op, e.LatencyMS, status)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyConfigKey(cfg, args[0], args[1]); err != nil {
		return err
	}
	cfg.Normalize()
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

func applyConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "model.provider":
		cfg.Model.Provider = value
	case "model.api.type":
		cfg.Model.API.Type = value
	case "model.api.endpoint":
		cfg.Model.API.Endpoint = value
	case "model.api.api_key":
		cfg.Model.API.APIKey = value
	case "model.api.model":
		cfg.Model.API.Model = value
	case "model.ollama.endpoint":
		cfg.Model.Ollama.Endpoint = value
	case "model.ollama.model":
		cfg.Model.Ollama.Model = value
	case "capture.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("capture.enabled: %w", err)
		}
		cfg.Capture.Enabled = b
	case "capture.interval_ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("capture.interval_ms: %w", err)
		}
		cfg.Capture.IntervalMS = n
	case "capture.skip_unchanged":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("capture.skip_unchanged: %w", err)
		}
		cfg.Capture.SkipUnchanged = &b
	case "capture.change_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("capture.change_threshold: %w", err)
		}
		cfg.Capture.ChangeThreshold = f
	case "capture.alert_cooldown_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("capture.alert_cooldown_seconds: %w", err)
		}
		cfg.Capture.AlertCooldownSeconds = n
	case "capture.alert_confidence_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("capture.alert_confidence_threshold: %w", err)
		}
		cfg.Capture.AlertConfidenceThreshold = f
	case "storage.retention_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("storage.retention_days: %w", err)
		}
		cfg.Storage.RetentionDays = n
	case "storage.max_screenshots":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("storage.max_screenshots: %w", err)
		}
		cfg.Storage.MaxScreenshots = n
	case "notify.telegram.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notify.telegram.enabled: %w", err)
		}
		cfg.Notify.Telegram.Enabled = b
	case "notify.telegram.token":
		cfg.Notify.Telegram.Token = value
	case "notify.telegram.chat_id":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("notify.telegram.chat_id: %w", err)
		}
		cfg.Notify.Telegram.ChatID = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
