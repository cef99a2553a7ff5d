package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Fi44er/sol_gift/config"
	"github.com/Fi44er/sol_gift/db"
	"github.com/Fi44er/sol_gift/internal/bot"
	"github.com/Fi44er/sol_gift/internal/handler"
	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/repository"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/internal/settlement"
	"github.com/Fi44er/sol_gift/internal/treeplan"
	"github.com/Fi44er/sol_gift/internal/verifier"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	bootLogger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		bootLogger.Fatal("Failed to load config: ", err)
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)

	database, err := db.ConnectDb(cfg.DBDriver, cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	vault, err := utils.ParsePrivateKey(cfg.VaultPrivateKey)
	if err != nil {
		logger.Fatal("Failed to parse vault key: ", err)
	}

	ledgerOpts := ledger.Options{
		VerifyCommitment:         rpc.CommitmentType(strings.ToLower(cfg.VerifyCommitment)),
		SettleCommitment:         rpc.CommitmentType(strings.ToLower(cfg.SettleCommitment)),
		ConfirmTimeout:           cfg.ConfirmTimeout,
		SendAttempts:             cfg.SendAttempts,
		PriorityFeeMicroLamports: cfg.PriorityFeeMicroLamports,
	}
	clients := map[models.Network]*ledger.Client{}
	for name, endpoint := range cfg.RPCEndpoints() {
		if endpoint == "" {
			continue
		}
		clients[models.Network(name)] = ledger.Dial(endpoint, ledgerOpts, logger)
		logger.Infof("🔗 %s RPC: %s", name, endpoint)
	}
	pool := ledger.NewPool(models.Network(cfg.DefaultNetwork), clients)

	repo := repository.NewRepository(database, logger)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	var telegramBot *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" && cfg.AdminChatID != 0 {
		telegramBot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Fatal("Failed to create bot API: ", err)
		}
		logger.Infof("📣 Notifications go to chat %d via @%s", cfg.AdminChatID, telegramBot.Self.UserName)
		notifier = notify.NewTelegramNotifier(telegramBot, cfg.AdminChatID, logger)
	}

	// a settlement is abandoned only after every send attempt has expired
	inFlight := time.Duration(cfg.SendAttempts) * cfg.ConfirmTimeout
	svc := service.NewService(
		repo,
		verifier.New(pool, logger),
		settlement.NewExecutor(pool, vault, logger),
		provisioner.New(pool, repo, vault, treeplan.NewDefaultPlanner(), logger),
		pool,
		notifier,
		service.Options{
			DefaultNetwork: models.Network(cfg.DefaultNetwork),
			JWTSecret:      []byte(cfg.JWTSecret),
			SessionTTL:     cfg.SessionTTL,
			ReleaseAfter:   inFlight + 90*time.Second,
			ProvisionLease: 3*inFlight + 2*time.Minute,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go svc.RunReconciler(ctx, interval)
	if telegramBot != nil {
		go bot.NewBot(telegramBot, svc, cfg.AdminChatID, logger).Start(ctx)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(handler.NewHandler(svc, logger)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: inFlight + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.Infof("🚀 Vault %s, listening on %s", vault.PublicKey(), cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}
}
