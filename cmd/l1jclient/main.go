package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/l1jgo/client/internal/client"
	"github.com/l1jgo/client/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, version string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m           L1JGO-Client                    \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      天堂 3.80C · Go 遊戲客戶端           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m客戶端:\033[0m %s \033[90m(版本: %s)\033[0m\n\n", name, version)
}

// displayWidth counts each CJK rune as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main client logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/client.toml"
	if p := os.Getenv("L1JCLIENT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Client.Name, cfg.Client.Version)

	// 3. Scripts, scenes and subsystems
	printSection("腳本與場景")
	app, err := client.New(cfg, log)
	if err != nil {
		return err
	}
	printOK("Lua 腳本載入完成")
	printStat("場景", len(app.Scenes.Names()))
	fmt.Println()

	// 4. Boot plan
	printSection("啟動計畫")
	if err := app.InstallPlan(cfg.Boot.Plan); err != nil {
		app.Lua.Close()
		return fmt.Errorf("boot plan: %w", err)
	}
	printStat("動作", len(app.Actions.Names()))
	if info, ok := app.Groups.Info(cfg.Boot.BootGroup); ok {
		printStat("啟動項目", info.Sequential+info.Parallel)
	}
	fmt.Println()

	// 5. Run until signaled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printSection("客戶端就緒")
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Loop.TickRate))
	fmt.Println()

	go func() {
		<-ctx.Done()
		log.Info("收到關閉信號")
	}()
	if err := app.Run(ctx); err != nil {
		return err
	}
	log.Info("客戶端已停止")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
