package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DBPinger はデータベース到達性確認のインターフェース。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CatalogChecker はリモートカタログ到達性確認のインターフェース。
type CatalogChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db      DBPinger
	catalog CatalogChecker
	logger  *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db DBPinger, catalog CatalogChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		catalog: catalog,
		logger:  logger,
	}
}

// componentStatus は詳細ヘルスチェックの各コンポーネントの状態。
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health は軽量ヘルスチェック。
// GET /health
// ロードバランサーやオーケストレーターの死活監視用。
// データベースへの到達性のみを確認し、healthyなら200、そうでなければ503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("health_check_failed", slog.String("error", err.Error()))
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthDeep はコンポーネント別の詳細ヘルスチェック。
// GET /health/deep
// 監視ダッシュボードとアラート分析用。
// データベースは全体のhealthy判定に影響するが、リモートカタログは
// 参考情報として報告するのみで判定には含めない（縮退運転が前提のため）。
func (h *HealthHandler) HealthDeep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overall := "healthy"
	components := map[string]componentStatus{}

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("health_check_failed",
			slog.String("component", "database"),
			slog.String("error", err.Error()),
		)
		components["database"] = componentStatus{Status: "unhealthy", Error: err.Error()}
		overall = "unhealthy"
	} else {
		components["database"] = componentStatus{
			Status:  "healthy",
			Message: "Database connection verified",
		}
	}

	if err := h.catalog.HealthCheck(ctx); err != nil {
		h.logger.Warn("health_check_failed",
			slog.String("component", "catalog"),
			slog.String("error", err.Error()),
		)
		components["catalog"] = componentStatus{Status: "unhealthy", Error: err.Error()}
	} else {
		components["catalog"] = componentStatus{
			Status:  "healthy",
			Message: "Remote catalog reachable",
		}
	}

	statusCode := http.StatusOK
	if overall != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, map[string]any{
		"status":     overall,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}
