package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"deriv-trading-bot-go/internal/bot"
	"deriv-trading-bot-go/internal/config"
	"deriv-trading-bot-go/internal/logger"
	"deriv-trading-bot-go/internal/models"
	"deriv-trading-bot-go/internal/persistence"
	"deriv-trading-bot-go/internal/reporter"
	"deriv-trading-bot-go/internal/session"
	"deriv-trading-bot-go/internal/simulator"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or demo")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 加载 .env 与配置文件之前先用默认配置初始化, 保证启动阶段也有日志
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	switch *mode {
	case "live":
		runLiveMode(cfg)
	case "demo":
		runDemoMode(cfg)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'live' 或 'demo'。", *mode)
	}
}

// runLiveMode 连接真实接入点运行自动交易
func runLiveMode(cfg *models.Config) {
	logger.S().Info("--- 启动实时交易模式 ---")

	token := os.Getenv("DERIV_API_TOKEN")
	if token == "" {
		logger.S().Fatal("错误：DERIV_API_TOKEN 环境变量必须被设置。")
	}
	run(cfg, token)
}

// runDemoMode 启动进程内模拟对端并连接它, 不需要真实账户
func runDemoMode(cfg *models.Config) {
	logger.S().Info("--- 启动演示模式 ---")

	sim := simulator.NewServer(10000, cfg.PayoutRatio, logger.L())
	endpoint, err := sim.Start()
	if err != nil {
		logger.S().Fatalf("启动模拟对端失败: %v", err)
	}
	defer sim.Stop()

	cfg.Endpoint = endpoint
	cfg.TradingEnabled = true
	run(cfg, "demo-token")
}

func run(cfg *models.Config, token string) {
	// 交易历史落盘
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("打开交易历史数据库失败: %v", err)
	}
	defer repo.Close()

	journal := persistence.NewTradeJournal(repo, logger.L())
	journal.Start()
	defer journal.Stop()

	// 建立会话
	sess := session.New(cfg, logger.L())
	sess.OnConnectionStateChange(func(state session.State) {
		logger.S().Infof("连接状态: %s", state)
	})
	sess.OnBalanceUpdate(func(balance float64, currency string) {
		logger.S().Infof("余额更新: %.2f %s", balance, currency)
	})
	sess.OnTradeSettled(func(rec models.TradeRecord) {
		journal.Record(rec)
	})

	if err := sess.Connect(); err != nil {
		logger.S().Fatalf("连接失败: %v", err)
	}
	defer sess.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeoutSec)*time.Second)
	auth, err := sess.Authorize(ctx, token)
	cancel()
	if err != nil {
		logger.S().Fatalf("授权失败: %v", err)
	}
	initialBalance := auth.Authorize.Balance

	ctx, cancel = context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeoutSec)*time.Second)
	if _, err := sess.SubscribeBalance(ctx); err != nil {
		logger.S().Warnf("订阅余额推送失败: %v", err)
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeoutSec)*time.Second)
	symbols, err := sess.ActiveSymbols(ctx)
	cancel()
	if err != nil {
		logger.S().Warnf("获取可交易品种失败: %v", err)
	} else {
		logger.S().Infof("当前可交易品种: %d 个", len(symbols))
	}

	// 启动自动交易
	trader, err := bot.NewAutoTrader(sess, cfg.Strategy, logger.L())
	if err != nil {
		logger.S().Fatalf("初始化自动交易失败: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), time.Duration(cfg.RequestTimeoutSec)*time.Second)
	err = trader.Start(ctx)
	cancel()
	if err != nil {
		logger.S().Fatalf("自动交易启动失败: %v", err)
	}

	// 等待中断信号以实现优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	trader.Stop()

	// 退出前输出本次运行的交易报告
	reporter.WriteReport(os.Stdout, cfg.Currency, initialBalance, sess.Records())
	logger.S().Info("机器人已成功停止。")
}
