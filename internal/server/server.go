package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/treasury-approval-gate/internal/engine"
	"github.com/xela07ax/treasury-approval-gate/internal/handler"
	"github.com/xela07ax/treasury-approval-gate/internal/infra"
	"github.com/xela07ax/treasury-approval-gate/internal/infra/auth"
	"go.uber.org/zap"
)

type GateServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler      // /auth/token
	transferHandler *handler.TransferHandler  // /v1/transfers
	approvalHandler *handler.ApprovalHandler  // /v1/approvals (HITL)
	dashHandler     *handler.DashboardHandler // /v1/dashboard

	metricsHandler http.Handler // /metrics (Prometheus)
}

// NewGateServer инициализирует сервер шлюза со всеми зависимостями
func NewGateServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	transferH *handler.TransferHandler,
	approvalH *handler.ApprovalHandler,
	dashH *handler.DashboardHandler,
	metricsH http.Handler,
) *GateServer {
	s := &GateServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("gate-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		transferHandler: transferH,
		approvalHandler: approvalH,
		dashHandler:     dashH,
		metricsHandler:  metricsH,
	}

	s.routes()
	return s
}

func (s *GateServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Prometheus scrape endpoint
		r.Handle("/metrics", s.metricsHandler)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Казначейские операции (HITL-контур внутри)
		r.Post("/v1/transfers", s.transferHandler.Execute)

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List) // Очередь PENDING-заявок субъекта
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.Post("/decide", s.approvalHandler.Decide) // Approve/Deny + Redis Publish
			})
		})

		// Dashboard & Stats
		r.Get("/v1/dashboard/stats", s.dashHandler.GetStats)
	})
}

// ServeHTTP позволяет использовать GateServer как стандартный http.Handler
func (s *GateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
