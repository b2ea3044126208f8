package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/block"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"github.com/jmerrifield20/starnotary/internal/challenge"
	"github.com/jmerrifield20/starnotary/internal/notary"
	"go.uber.org/zap"
)

// NotaryService is the subset of *notary.Service the HTTP layer depends on.
type NotaryService interface {
	Height(ctx context.Context) (int, error)
	Tip(ctx context.Context) (string, error)
	ValidateChain(ctx context.Context) ([]chain.Violation, error)
	RequestChallenge(identity string) (*notary.Challenge, error)
	ChallengeWindow() time.Duration
	Submit(ctx context.Context, identity, token, sig string, star json.RawMessage) (*block.Record, error)
	GetByHeight(ctx context.Context, height int) (*block.Record, error)
	GetByHash(ctx context.Context, hash string) (*block.Record, error)
	GetStarsByIdentity(ctx context.Context, identity string) ([]block.StarRecord, error)
	Decode(r *block.Record) (block.Payload, error)
}

// NotaryHandler exposes the chain, challenge, submission and query endpoints.
type NotaryHandler struct {
	svc    NotaryService
	logger *zap.Logger
}

// NewNotaryHandler creates a new NotaryHandler.
func NewNotaryHandler(svc NotaryService, logger *zap.Logger) *NotaryHandler {
	return &NotaryHandler{svc: svc, logger: logger}
}

// Register mounts the notary routes on the given router group.
func (h *NotaryHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/chain", h.Overview)
	rg.GET("/chain/verify", h.Verify)
	rg.POST("/challenges", h.RequestChallenge)
	rg.POST("/stars", h.SubmitStar)
	rg.GET("/stars/:identity", h.StarsByIdentity)
	rg.GET("/blocks/height/:height", h.BlockByHeight)
	rg.GET("/blocks/hash/:hash", h.BlockByHash)
}

type challengeRequest struct {
	Identity string `json:"identity" binding:"required"`
}

type submitRequest struct {
	Identity  string          `json:"identity" binding:"required"`
	Token     string          `json:"token" binding:"required"`
	Signature string          `json:"signature" binding:"required"`
	Star      json.RawMessage `json:"star" binding:"required"`
}

type challengeResponse struct {
	Identity      string    `json:"identity"`
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	WindowSeconds int       `json:"window_seconds"`
}

// recordView is the wire form of a committed record. The raw body is hex
// encoded; the decoded payload is attached when the body decodes.
type recordView struct {
	Hash         string         `json:"hash"`
	Height       int            `json:"height"`
	Time         int64          `json:"time"`
	PreviousHash string         `json:"previous_hash"`
	Body         string         `json:"body"`
	Payload      *block.Payload `json:"payload,omitempty"`
	DecodeError  string         `json:"decode_error,omitempty"`
}

func (h *NotaryHandler) view(r *block.Record) recordView {
	v := recordView{
		Hash:         r.Hash,
		Height:       r.Height,
		Time:         r.Time,
		PreviousHash: r.PreviousHash,
		Body:         hex.EncodeToString(r.Body),
	}
	p, err := h.svc.Decode(r)
	if err != nil {
		v.DecodeError = err.Error()
	} else {
		v.Payload = &p
	}
	return v
}

func nonNil(vs []chain.Violation) []chain.Violation {
	if vs == nil {
		return []chain.Violation{}
	}
	return vs
}

func descriptors(vs []chain.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.String())
	}
	return out
}

// Overview handles GET /chain and returns the current height and tip hash.
func (h *NotaryHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	height, err := h.svc.Height(ctx)
	if err != nil {
		h.logger.Error("chain height", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}
	tip, err := h.svc.Tip(ctx)
	if err != nil {
		h.logger.Error("chain tip", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain tip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"height": height, "tip": tip})
}

// Verify handles GET /chain/verify. It walks the whole chain and reports every
// violation found. An intact chain reports an empty error list.
func (h *NotaryHandler) Verify(c *gin.Context) {
	violations, err := h.svc.ValidateChain(c.Request.Context())
	if err != nil {
		h.logger.Error("validate chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate chain"})
		return
	}
	if len(violations) > 0 {
		h.logger.Warn("chain integrity check failed", zap.Int("violations", len(violations)))
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":      len(violations) == 0,
		"errors":     descriptors(violations),
		"violations": nonNil(violations),
	})
}

// RequestChallenge handles POST /challenges.
func (h *NotaryHandler) RequestChallenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.svc.RequestChallenge(req.Identity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, challengeResponse{
		Identity:      ch.Identity,
		Token:         ch.Token,
		IssuedAt:      ch.IssuedAt,
		ExpiresAt:     ch.ExpiresAt,
		WindowSeconds: int(h.svc.ChallengeWindow() / time.Second),
	})
}

// SubmitStar handles POST /stars.
func (h *NotaryHandler) SubmitStar(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.Submit(c.Request.Context(), req.Identity, req.Token, req.Signature, req.Star)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.view(rec))
}

// BlockByHeight handles GET /blocks/height/:height.
func (h *NotaryHandler) BlockByHeight(c *gin.Context) {
	height, err := strconv.Atoi(c.Param("height"))
	if err != nil || height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return
	}

	rec, err := h.svc.GetByHeight(c.Request.Context(), height)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(rec))
}

// BlockByHash handles GET /blocks/hash/:hash.
func (h *NotaryHandler) BlockByHash(c *gin.Context) {
	rec, err := h.svc.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(rec))
}

// StarsByIdentity handles GET /stars/:identity.
func (h *NotaryHandler) StarsByIdentity(c *gin.Context) {
	identity := c.Param("identity")
	stars, err := h.svc.GetStarsByIdentity(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity, "stars": stars})
}

// writeError maps service errors to HTTP status codes.
func (h *NotaryHandler) writeError(c *gin.Context, err error) {
	var ierr *chain.IntegrityError
	switch {
	case errors.As(err, &ierr):
		h.logger.Error("append rejected by chain validation", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{
			"error":      "chain integrity violation",
			"errors":     descriptors(ierr.Violations),
			"violations": ierr.Violations,
		})
	case errors.Is(err, notary.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, notary.ErrExpiredChallenge):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, notary.ErrInvalidSignature), errors.Is(err, notary.ErrInvalidChallenge):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, notary.ErrInvalidStar), errors.Is(err, challenge.ErrEmptyIdentity), errors.Is(err, challenge.ErrMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("notary request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
