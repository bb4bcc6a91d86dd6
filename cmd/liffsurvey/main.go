package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liffsurvey/internal/config"
	"liffsurvey/internal/liff"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "liffsurvey",
	Short: "LIFF survey client and forwarding proxy",
	Long: `liffsurvey collects survey answers and relays them to a spreadsheet script.
- fill: answer the survey interactively and submit it.
- submit: submit answers from a file or flags.
- serve: run the forwarding proxy the survey page posts to.
- log tail: list recent submission attempts with their diagnostics.
Configuration lives in liffsurvey.yml inside the workspace; environment
variables (LIFFSURVEY_*, GAS_URL, CORS_ORIGINS, PORT) override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(logLevel())
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LIFFSURVEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Names used by existing deployments of the proxy.
	_ = viper.BindEnv("upstream-url", "LIFFSURVEY_UPSTREAM_URL", "GAS_URL")
	_ = viper.BindEnv("cors-origins", "LIFFSURVEY_CORS_ORIGINS", "CORS_ORIGINS")
	_ = viper.BindEnv("port", "LIFFSURVEY_PORT", "PORT")
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.Bool("json", false, "output JSON")
	pf.BoolP("verbose", "v", false, "debug logging and expanded diagnostics")
	pf.Bool("debug", false, "simulate submissions instead of sending them")
	pf.String("liff-id", "", "LIFF app id (overrides liff.id)")
	pf.String("upstream-url", "", "spreadsheet script URL (overrides upstream.url)")
	pf.String("api-base-url", "", "forwarding proxy base URL (overrides api.base_url)")
	pf.String("id-token", "", "LIFF ID token identifying the respondent")
	pf.Bool("in-client", false, "behave as if opened inside the LINE client")
	pf.String("page-url", "", "URL of the page submitting (default liff.url)")
	for _, name := range []string{"workspace", "json", "verbose", "debug", "liff-id", "upstream-url", "api-base-url", "id-token", "in-client", "page-url"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(fillCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fieldsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
}

// loadConfig reads the workspace config (falling back to the bundled survey)
// and applies environment and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	o := config.Overrides{
		LIFFID:         liff.ResolveAppID(viper.GetString("liff-id")),
		UpstreamURL:    viper.GetString("upstream-url"),
		APIBaseURL:     viper.GetString("api-base-url"),
		AllowedOrigins: viper.GetString("cors-origins"),
		Port:           viper.GetInt("port"),
	}
	// Set means an explicit flag or a non-empty env value, so "false" can
	// switch off app.debug from the file.
	if viper.IsSet("debug") {
		debug := viper.GetBool("debug")
		o.Debug = &debug
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logLevel is debug under --verbose or app.debug, otherwise app.log_level.
// An unreadable config leaves the level at info; the command itself reports
// the problem.
func logLevel() zapcore.Level {
	if viper.GetBool("verbose") {
		return zapcore.DebugLevel
	}
	cfg, err := loadConfig()
	if err != nil {
		return zapcore.InfoLevel
	}
	if cfg.App.Debug {
		return zapcore.DebugLevel
	}
	lvl, err := zapcore.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
