package service

import (
	"github.com/RoGogDBD/metrics-tracker/internal/config"
	"github.com/RoGogDBD/metrics-tracker/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter создает и настраивает HTTP-роутер API трекера.
//
// Параметры:
//   - h: обработчик запросов (handler.Handler)
//   - logger: логгер для логирования запросов
//
// Возвращает:
//   - *chi.Mux: настроенный роутер
func NewRouter(h *handler.Handler, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)         // Добавляет уникальный идентификатор запроса
	r.Use(middleware.RealIP)            // Определяет реальный IP клиента
	r.Use(config.RequestLogger(logger)) // Логирует запросы с помощью zap
	r.Use(middleware.Recoverer)         // Восстанавливает после паники
	r.Use(middleware.Compress(5))       // Сжимает ответы

	r.Post("/update", h.HandleUpdateJSON)
	r.Post("/update/", h.HandleUpdateJSON)
	r.Post("/update/{type}/{name}/{value}", h.HandleUpdate)
	r.Post("/updates/", h.HandleUpdateBatchJSON)

	r.Post("/value", h.HandleGetMetricJSON)
	r.Post("/value/", h.HandleGetMetricJSON)
	r.Get("/value/{type}/{name}", h.HandleGetMetricValue)
	r.Get("/history/{type}/{name}", h.HandleHistory)
	r.Get("/snapshot", h.HandleSnapshot)

	r.Get("/ping", h.HandlePing)
	r.Get("/", h.HandleMetricsPage)

	return r
}
