package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/mirror"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// MirrorService defines the mirror operations the handler drives.
type MirrorService interface {
	Subscribe(ctx context.Context, follower, leader model.AccountID) (mirror.Subscription, error)
	Unsubscribe(follower model.AccountID) error
	ReplicateTrade(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*mirror.Replication, error)
	Registry() *mirror.Registry
}

// MirrorHandler handles HTTP API requests for mirror operations. The
// deployment serves one follower account, fixed at startup.
type MirrorHandler struct {
	logger   *zap.Logger
	service  MirrorService
	follower model.AccountID
}

// NewMirrorHandler creates a new MirrorHandler.
func NewMirrorHandler(logger *zap.Logger, service MirrorService, follower model.AccountID) *MirrorHandler {
	return &MirrorHandler{
		logger:   logger,
		service:  service,
		follower: follower,
	}
}

// SubscribeHandler re-points the follower at a new leader account.
func (h *MirrorHandler) SubscribeHandler(c *fiber.Ctx) error {
	var req SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sub, err := h.service.Subscribe(c.Context(), h.follower, model.AccountID(req.LeaderAccount))
	if err != nil {
		h.logger.Error("mirror.subscribe.failed",
			zap.String("leader", req.LeaderAccount),
			zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(SubscribeResponse{
			ErrorMsg: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(SubscribeResponse{
		OK:               true,
		NewLeaderAccount: string(sub.Leader),
	})
}

// UnsubscribeHandler stops mirroring for the follower.
func (h *MirrorHandler) UnsubscribeHandler(c *fiber.Ctx) error {
	if err := h.service.Unsubscribe(h.follower); err != nil {
		if errors.Is(err, mirror.ErrNoSubscription) {
			return c.Status(fiber.StatusNotFound).JSON(SubscribeResponse{
				ErrorMsg: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(SubscribeResponse{
			ErrorMsg: err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(SubscribeResponse{OK: true})
}

// ProcessTradeHandler receives a trade notification from the webhook
// provider and replicates it for the follower. Events that do not involve
// the subscribed leader, or that truncate to a zero-size order, are
// acknowledged without an order so the provider does not redeliver them.
func (h *MirrorHandler) ProcessTradeHandler(c *fiber.Ctx) error {
	var event model.TradeEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rep, err := h.service.ReplicateTrade(c.Context(), h.follower, &event)
	if err != nil {
		switch {
		case errors.Is(err, mirror.ErrLeaderNotInTrade):
			return c.Status(fiber.StatusOK).JSON(TradeResponse{OK: true})
		case errors.Is(err, mirror.ErrNoSubscription):
			return c.Status(fiber.StatusOK).JSON(TradeResponse{OK: true})
		default:
			h.logger.Error("mirror.process_trade.failed",
				zap.String("product", event.Product),
				zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(TradeResponse{
				ErrorMsg: err.Error(),
			})
		}
	}
	if rep == nil {
		return c.Status(fiber.StatusOK).JSON(TradeResponse{OK: true})
	}

	return c.Status(fiber.StatusOK).JSON(TradeResponse{
		OK:         true,
		Replicated: 1,
		Signature:  string(rep.Signature),
	})
}
