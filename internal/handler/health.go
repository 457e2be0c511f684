package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and readiness. Readiness covers everything
// an order or AI job touches: Postgres, Redis, RabbitMQ and the upload
// directory that product and job images are written to.
type HealthHandler struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	amqpConn    *amqp.Connection
	uploadDir   string
	aiMode      string
}

func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection, uploadDir string, useRealAI bool) *HealthHandler {
	mode := "mock"
	if useRealAI {
		mode = "real"
	}
	return &HealthHandler{
		dbPool:      dbPool,
		redisClient: redisClient,
		amqpConn:    amqpConn,
		uploadDir:   uploadDir,
		aiMode:      mode,
	}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "aiService": h.aiMode})
}

// Readyz checks every dependency and reports them all, instead of stopping
// at the first failure, so a single response shows what is down.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{}
	ready := true

	if err := h.dbPool.Ping(ctx); err != nil {
		checks["postgres"] = "unavailable"
		ready = false
	} else {
		checks["postgres"] = "connected"
	}

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		ready = false
	} else {
		checks["redis"] = "connected"
	}

	if h.amqpConn.IsClosed() {
		checks["rabbitmq"] = "unavailable"
		ready = false
	} else {
		checks["rabbitmq"] = "connected"
	}

	if info, err := os.Stat(h.uploadDir); err != nil || !info.IsDir() {
		checks["uploads"] = "unavailable"
		ready = false
	} else {
		checks["uploads"] = "writable"
	}

	status := http.StatusOK
	checks["status"] = "ok"
	checks["aiService"] = h.aiMode
	if !ready {
		status = http.StatusServiceUnavailable
		checks["status"] = "error"
	}
	c.JSON(status, checks)
}
