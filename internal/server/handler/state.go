package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// MarketStore serves and accepts market snapshots.
type MarketStore interface {
	domain.MarketDataProvider
	SetSnapshot(ctx context.Context, snap domain.MarketSnapshot) error
}

// BotTagReader lists the tags applied to a bot.
type BotTagReader interface {
	BotTags(ctx context.Context, bot string) ([]string, error)
}

// StateHandler exposes the state decisions read: positions, bot counters
// and market snapshots. Market updates are pushed through it by feeders.
type StateHandler struct {
	positions domain.PositionStore
	bots      domain.BotStateStore
	tags      BotTagReader
	market    MarketStore
	logger    *slog.Logger
}

// NewStateHandler creates a StateHandler. Any collaborator may be nil; its
// endpoints then answer 501.
func NewStateHandler(positions domain.PositionStore, bots domain.BotStateStore, tags BotTagReader, market MarketStore, logger *slog.Logger) *StateHandler {
	return &StateHandler{positions: positions, bots: bots, tags: tags, market: market, logger: logHandler(logger, "state")}
}

func notImplemented(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotImplemented, what+" is not configured")
}

// Positions lists positions filtered by ?bot=, ?symbol=, ?strategy= and
// ?state=.
// GET /api/positions
func (h *StateHandler) Positions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		notImplemented(w, "position store")
		return
	}
	q := r.URL.Query()
	positions, err := h.positions.ListPositions(r.Context(), domain.PositionFilter{
		BotName:  q.Get("bot"),
		Symbol:   q.Get("symbol"),
		Strategy: q.Get("strategy"),
		State:    domain.PositionState(q.Get("state")),
	})
	if err != nil {
		writeStoreError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.PositionSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// Bot returns the counters and tags of one bot.
// GET /api/bots/{bot}
func (h *StateHandler) Bot(w http.ResponseWriter, r *http.Request) {
	if h.bots == nil {
		notImplemented(w, "bot state")
		return
	}
	bot := pathParam(r, "bot")
	counters, err := h.bots.Counters(r.Context(), bot)
	if err != nil {
		writeStoreError(w, r, h.logger, "bot counters", err)
		return
	}
	resp := map[string]any{"bot_name": bot, "counters": counters}
	if h.tags != nil {
		tags, err := h.tags.BotTags(r.Context(), bot)
		if err != nil {
			writeStoreError(w, r, h.logger, "bot tags", err)
			return
		}
		resp["tags"] = tags
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMarket returns the stored snapshot of a symbol with its history.
// GET /api/market/{symbol}
func (h *StateHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	if h.market == nil {
		notImplemented(w, "market data")
		return
	}
	symbol := pathParam(r, "symbol")
	snap, err := h.market.Snapshot(r.Context(), symbol)
	if err != nil {
		writeStoreError(w, r, h.logger, "get snapshot", err)
		return
	}
	hist, err := h.market.PriceHistory(r.Context(), symbol, 0)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeStoreError(w, r, h.logger, "price history", err)
		return
	}
	snap.History = hist
	writeJSON(w, http.StatusOK, snap)
}

// PutMarket stores a snapshot for the path symbol and values the open
// positions in it at the new price.
// PUT /api/market/{symbol}
func (h *StateHandler) PutMarket(w http.ResponseWriter, r *http.Request) {
	if h.market == nil {
		notImplemented(w, "market data")
		return
	}
	var snap domain.MarketSnapshot
	if err := decodeBody(r, &snap); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap.Symbol = pathParam(r, "symbol")
	if err := h.market.SetSnapshot(r.Context(), snap); err != nil {
		writeStoreError(w, r, h.logger, "set snapshot", err)
		return
	}
	if h.positions != nil {
		if _, err := h.positions.MarkPrice(r.Context(), snap.Symbol, snap.MarkPrice()); err != nil {
			writeStoreError(w, r, h.logger, "mark positions", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
