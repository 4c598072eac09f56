package ws

import (
	"context"
	"math/rand"
	"time"
)

// jitterMin/jitterMax bound the test-mode random walk added to every
// published price (spec §4.J: "±0.20 – ±0.69"), for load testing only; it
// never touches stored state.
const (
	jitterMin = 0.20
	jitterMax = 0.69
)

func (h *Hub) jitter(price float64) float64 {
	if !h.testMode {
		return price
	}
	delta := jitterMin + rand.Float64()*(jitterMax-jitterMin)
	if rand.Intn(2) == 0 {
		delta = -delta
	}
	return price + delta
}

// PublishStrategyPrices gathers the signal set for strategyName and sends
// one batched price_update to every subscriber of (strategy, strategyName)
// (spec §4.J).
func (h *Hub) PublishStrategyPrices(ctx context.Context, strategyName string) error {
	ids := h.subs.subscribers(kindStrategy, strategyName)
	if len(ids) == 0 {
		return nil
	}

	signals, err := h.signals.SignalsByStrategy(ctx, strategyName)
	if err != nil {
		return err
	}
	items := make([]priceItem, 0, len(signals))
	for _, sig := range signals {
		item := signalToPriceItem(sig)
		item.Price = h.jitter(item.Price)
		items = append(items, item)
	}

	msg := priceUpdateMessage{Type: "price_update", Data: items, Count: len(items), Timestamp: time.Now()}
	h.sendToClients(ids, msg)
	return nil
}

// PublishStockPrices aggregates subscribers of (stock, code) across codes
// and sends one merged price_update per client (spec §4.J).
func (h *Hub) PublishStockPrices(codes []string) {
	perClient := make(map[string][]priceItem)
	for _, code := range codes {
		q, ok := h.quotes.SnapshotOne(code)
		if !ok {
			continue
		}
		item := quoteToPriceItem(q)
		item.Price = h.jitter(item.Price)
		for _, id := range h.subs.subscribers(kindStock, code) {
			perClient[id] = append(perClient[id], item)
		}
	}

	now := time.Now()
	for id, items := range perClient {
		msg := priceUpdateMessage{Type: "price_update", Data: items, Count: len(items), Timestamp: now}
		h.sendToClients([]string{id}, msg)
	}
}

// BroadcastAllActive runs the strategy/stock publishers for every target
// that currently has at least one subscriber (spec §4.J). Market-kind
// targets have no defined publisher in this spec and are skipped.
func (h *Hub) BroadcastAllActive(ctx context.Context) error {
	var stockCodes []string
	for _, key := range h.subs.activeTargets() {
		switch key.kind {
		case kindStrategy:
			if err := h.PublishStrategyPrices(ctx, key.target); err != nil {
				return err
			}
		case kindStock:
			stockCodes = append(stockCodes, key.target)
		}
	}
	if len(stockCodes) > 0 {
		h.PublishStockPrices(stockCodes)
	}
	return nil
}

func (h *Hub) sendToClients(ids []string, msg any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendJSON(c, msg)
	}
}
