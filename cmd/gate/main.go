package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/treasury-approval-gate/internal/audit"
	"github.com/xela07ax/treasury-approval-gate/internal/ciba"
	"github.com/xela07ax/treasury-approval-gate/internal/connectors"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
	"github.com/xela07ax/treasury-approval-gate/internal/engine"
	"github.com/xela07ax/treasury-approval-gate/internal/handler"
	"github.com/xela07ax/treasury-approval-gate/internal/infra"
	"github.com/xela07ax/treasury-approval-gate/internal/infra/auth"
	"github.com/xela07ax/treasury-approval-gate/internal/policy"
	"github.com/xela07ax/treasury-approval-gate/internal/repository/postgres"
	"github.com/xela07ax/treasury-approval-gate/internal/server"
	"github.com/xela07ax/treasury-approval-gate/internal/service"
	"github.com/xela07ax/treasury-approval-gate/internal/store"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Audit Trail: без БД шлюз жив, но след решений уходит только в логи
	var auditor audit.Auditor = audit.NopAuditor{}
	var trail *audit.Trail
	if cfg.Database.URL != "" {
		auditRepo, err := postgres.NewAuditRepo(cfg.Database)
		if err != nil {
			logger.Fatal("failed to init audit repository", zap.Error(err))
		}
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := auditRepo.Ping(pingCtx); err != nil {
			logger.Fatal("audit database unreachable", zap.Error(err))
		}
		pingCancel()

		trail = audit.NewTrail(auditRepo, logger)
		trail.Start()
		auditor = trail
	} else {
		logger.Warn("database url is empty, approval audit trail is disabled")
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	if trail != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-appCtx.Done():
					return
				case <-ticker.C:
					metrics.AuditBufferFill.Set(float64(trail.BufferLen()))
				}
			}
		}()
	}

	// 3. Store + фоновая уборка терминальных заявок (гигиена памяти)
	approvalStore := store.NewStore(logger)
	go approvalStore.StartSweeper(appCtx, 1*time.Minute, 1*time.Hour)

	// 4. Backchannel: реальный authority за контуром надежности
	// либо принудительная симуляция, если authority не сконфигурирован
	var authority ciba.Authority
	if cfg.Backchannel.BaseURL != "" {
		authority = engine.NewReliabilityWrapper(
			ciba.NewHTTPAuthority(cfg.Backchannel, logger), metrics)
	} else {
		logger.Warn("backchannel authority is not configured, approvals run in simulated mode")
	}

	cibaClient := ciba.NewClient(authority, approvalStore, ciba.Settings{
		DefaultTTL:          cfg.Approval.DefaultTTL,
		MinTTL:              cfg.Approval.MinTTL,
		DefaultPollInterval: cfg.Approval.DefaultPollInterval,
		CongestionStep:      cfg.Approval.CongestionStep,
		MaxPollInterval:     cfg.Approval.MaxPollInterval,
	}, logger)

	// 5. Core (сборка HITL-контура)
	riskPolicy := policy.NewRiskPolicy(cfg.Approval.TransferThreshold, cfg.Approval.SensitiveKinds, logger)
	orchestrator := engine.NewOrchestrator(cibaClient, approvalStore, logger)
	core := engine.NewCore(
		riskPolicy,
		cibaClient,
		orchestrator,
		&connectors.MockLedgerConnector{},
		auditor,
		metrics,
		cfg.Approval.MaxWait,
		logger,
	)

	// 6. Auth (RS256)
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)
	authService := service.NewAuthService(privKey, cfg.Auth)

	// 7. Сервисы и слушатель решений с других инстансов
	approvalService := service.NewApprovalService(approvalStore, cibaClient, rdb, auditor, logger)
	go engine.ListenDecisionsResilient(appCtx, rdb, logger, infra.RedisChanDecisions, nil,
		func(requestID string, status domain.ApprovalStatus) {
			approvalService.ApplyRemoteDecision(requestID, status)
		})

	// 8. HTTP Server
	gateServer := server.NewGateServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewTransferHandler(core),
		handler.NewApprovalHandler(approvalService),
		handler.NewDashboardHandler(approvalService, riskPolicy.Threshold()),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gateServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("treasury approval gate started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-stop // Ждем сигнал
	logger.Info("treasury approval gate stopping...")

	// Даем время на завершение висящих await-запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Approval.MaxWait+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые горутины и дожимаем audit-буфер (Final Flush)
	cancel()
	if trail != nil {
		trail.Stop()
	}

	logger.Info("treasury approval gate exited properly")
}
