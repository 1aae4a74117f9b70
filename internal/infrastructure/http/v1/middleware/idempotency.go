package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cardvault/internal/core/apperror"
	appctx "cardvault/internal/core/context"
	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

	idempotencyKeyCtx   = "idempotency_key"
	idempotencyStoreCtx = "idempotency_store"
)

// IdempotencyStore persists idempotency keys and their responses.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	ReleaseKey(ctx context.Context, key string) error
}

// Idempotency middleware replays the stored response for a repeated
// Idempotency-Key instead of running the request again. Requests without
// the header pass through.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		// Keys are scoped per user.
		userID := appctx.GetUserID(c.Request.Context())
		scopedKey := userID + "/" + key

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		operation := c.Request.Method + " " + c.Request.URL.Path
		replay, err := store.AcquireKey(c.Request.Context(), scopedKey, userID, operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(idempotencyKeyCtx, scopedKey)
		c.Set(idempotencyStoreCtx, store)
		c.Next()
	}
}

// CompleteIdempotency stores a successful response for the claimed key, if any.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := claimedKey(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), key, statusCode, contentType, response); err != nil {
		logger.Warn(c.Request.Context(), "idempotency key not completed", "error", err)
	}
}

// failIdempotency stores a client error for replay. Server errors release
// the key so the client can retry.
func failIdempotency(c *gin.Context, statusCode int, response any) {
	key, store, ok := claimedKey(c)
	if !ok {
		return
	}
	if statusCode >= http.StatusInternalServerError {
		if err := store.ReleaseKey(c.Request.Context(), key); err != nil {
			logger.Warn(c.Request.Context(), "idempotency key not released", "error", err)
		}
		return
	}
	if err := store.FailKey(c.Request.Context(), key, statusCode, "application/json", response); err != nil {
		logger.Warn(c.Request.Context(), "idempotency key not failed", "error", err)
	}
}

func claimedKey(c *gin.Context) (string, IdempotencyStore, bool) {
	key := c.GetString(idempotencyKeyCtx)
	if key == "" {
		return "", nil, false
	}
	v, _ := c.Get(idempotencyStoreCtx)
	store, ok := v.(IdempotencyStore)
	return key, store, ok
}
