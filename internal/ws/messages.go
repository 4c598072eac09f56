package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aristath/marketwatch/internal/model"
)

// inboundMessage is the shape of every client -> server frame (spec §6:
// "bit-exact" WebSocket protocol).
type inboundMessage struct {
	Type             string `json:"type"`
	SubscriptionType string `json:"subscription_type,omitempty"`
	Target           string `json:"target,omitempty"`
}

type connectedAck struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"client_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type subAck struct {
	Type      string    `json:"type"`
	ClientID  string    `json:"client_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type pongMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type priceItem struct {
	Code          string    `json:"code"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        float64   `json:"volume,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type priceUpdateMessage struct {
	Type      string      `json:"type"`
	Data      []priceItem `json:"data"`
	Count     int         `json:"count"`
	Timestamp time.Time   `json:"timestamp"`
}

type signalUpdateMessage struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Data      []priceItem `json:"data"`
	Count     int         `json:"count"`
	Timestamp time.Time   `json:"timestamp"`
}

type errorMessage struct {
	Type      string    `json:"type"`
	Error     string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func connectedMessage(clientID string) connectedAck {
	return connectedAck{Type: "connected", ClientID: clientID, Message: "connected", Timestamp: time.Now()}
}

func (h *Hub) sendJSON(c *client, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal outbound message")
		return
	}
	if !c.enqueue(payload) {
		h.log.Warn().Str("client_id", c.id).Msg("send buffer full, closing connection")
		h.unregister(c)
	}
}

// handleMessage validates one inbound frame and mutates the subscription
// manager, replying with the matching ack or an error (spec §4.J).
func (h *Hub) handleMessage(ctx context.Context, c *client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendJSON(c, errorMessage{Type: "error", Error: "invalid_json", Details: err.Error(), Timestamp: time.Now()})
		return
	}

	switch msg.Type {
	case "ping":
		c.touch()
		h.sendJSON(c, pongMessage{Type: "pong", Timestamp: time.Now()})

	case "subscribe":
		k, ok := parseKind(msg.SubscriptionType)
		if !ok || msg.Target == "" {
			h.sendJSON(c, errorMessage{Type: "error", Error: "bad_input", Details: "invalid subscription_type or target", Timestamp: time.Now()})
			return
		}
		// A subscribe to an unknown strategy is accepted without
		// validation against the strategy registry (spec §7).
		h.subs.subscribe(c.id, k, msg.Target)
		c.mu.Lock()
		c.subscriptions[subKey{kind: k, target: msg.Target}] = struct{}{}
		c.mu.Unlock()
		h.sendJSON(c, subAck{Type: "subscribed", ClientID: c.id, Message: msg.Target, Timestamp: time.Now()})

	case "unsubscribe":
		k, ok := parseKind(msg.SubscriptionType)
		if !ok || msg.Target == "" {
			h.sendJSON(c, errorMessage{Type: "error", Error: "bad_input", Details: "invalid subscription_type or target", Timestamp: time.Now()})
			return
		}
		h.subs.unsubscribe(c.id, k, msg.Target)
		c.mu.Lock()
		delete(c.subscriptions, subKey{kind: k, target: msg.Target})
		c.mu.Unlock()
		h.sendJSON(c, subAck{Type: "unsubscribed", ClientID: c.id, Message: msg.Target, Timestamp: time.Now()})

	default:
		h.sendJSON(c, errorMessage{Type: "error", Error: "unknown_type", Details: msg.Type, Timestamp: time.Now()})
	}
}

func parseKind(raw string) (kind, bool) {
	switch kind(raw) {
	case kindStrategy, kindStock, kindMarket:
		return kind(raw), true
	default:
		return "", false
	}
}

func quoteToPriceItem(q model.Quote) priceItem {
	return priceItem{
		Code: q.Code, Name: q.Name, Price: q.Price, Change: q.Change,
		ChangePercent: q.ChangePercent, Volume: q.Volume, Timestamp: q.UpdateTime,
	}
}

func signalToPriceItem(s model.Signal) priceItem {
	return priceItem{
		Code: s.Code, Name: s.Name, Price: s.Price, ChangePercent: s.ChangePercent,
		Volume: s.Volume, Timestamp: s.CalculatedTime,
	}
}
