package ws

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fakeQuoteSource struct {
	quotes map[string]model.Quote
}

func (f *fakeQuoteSource) SnapshotOne(symbol string) (model.Quote, bool) {
	q, ok := f.quotes[symbol]
	return q, ok
}

type fakeSignalSource struct {
	byStrategy map[string][]model.Signal
}

func (f *fakeSignalSource) SignalsByStrategy(ctx context.Context, strategyName string) ([]model.Signal, error) {
	return f.byStrategy[strategyName], nil
}

func newTestHub(t *testing.T, quotes *fakeQuoteSource, signals *fakeSignalSource) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(quotes, signals, false, zerolog.Nop())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestWebSocketRoutingOnlySendsToMatchingSubscribers(t *testing.T) {
	quotes := &fakeQuoteSource{quotes: map[string]model.Quote{
		"600519": {Code: "600519", Price: 1800, UpdateTime: time.Now()},
	}}
	signals := &fakeSignalSource{byStrategy: map[string][]model.Signal{
		"volume_wave": {{Code: "600519", Strategy: "volume_wave", Price: 1800}},
	}}
	h, srv := newTestHub(t, quotes, signals)

	c1 := dial(t, srv)
	c2 := dial(t, srv)
	c3 := dial(t, srv) // unrelated: no subscriptions

	var ack map[string]any
	require.NoError(t, wsjson.Read(context.Background(), c1, &ack)) // connected
	require.NoError(t, wsjson.Write(context.Background(), c1, map[string]string{
		"type": "subscribe", "subscription_type": "strategy", "target": "volume_wave",
	}))
	require.NoError(t, wsjson.Read(context.Background(), c1, &ack)) // subscribed

	require.NoError(t, wsjson.Read(context.Background(), c2, &ack)) // connected
	require.NoError(t, wsjson.Write(context.Background(), c2, map[string]string{
		"type": "subscribe", "subscription_type": "stock", "target": "600519",
	}))
	require.NoError(t, wsjson.Read(context.Background(), c2, &ack)) // subscribed

	require.NoError(t, wsjson.Read(context.Background(), c3, &ack)) // connected

	time.Sleep(20 * time.Millisecond) // allow registration to land

	require.NoError(t, h.PublishStrategyPrices(context.Background(), "volume_wave"))
	h.PublishStockPrices([]string{"600519"})

	var push1 map[string]any
	require.NoError(t, wsjson.Read(context.Background(), c1, &push1))
	assert.Equal(t, "price_update", push1["type"])
	data1, _ := push1["data"].([]any)
	require.Len(t, data1, 1)
	assert.Equal(t, "600519", data1[0].(map[string]any)["code"])

	var push2 map[string]any
	require.NoError(t, wsjson.Read(context.Background(), c2, &push2))
	assert.Equal(t, "price_update", push2["type"])

	readCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var unrelated map[string]any
	err := wsjson.Read(readCtx, c3, &unrelated)
	assert.Error(t, err, "unrelated client must not receive a push")
}

func TestSubscribeToUnknownStrategyIsAcceptedWithoutError(t *testing.T) {
	h, srv := newTestHub(t, &fakeQuoteSource{quotes: map[string]model.Quote{}}, &fakeSignalSource{byStrategy: map[string][]model.Signal{}})
	_ = h
	c := dial(t, srv)

	var ack map[string]any
	require.NoError(t, wsjson.Read(context.Background(), c, &ack))
	require.NoError(t, wsjson.Write(context.Background(), c, map[string]string{
		"type": "subscribe", "subscription_type": "strategy", "target": "not_a_real_strategy",
	}))
	require.NoError(t, wsjson.Read(context.Background(), c, &ack))
	assert.Equal(t, "subscribed", ack["type"])
}

func TestPingPongKeepsConnectionAlive(t *testing.T) {
	h, srv := newTestHub(t, &fakeQuoteSource{quotes: map[string]model.Quote{}}, &fakeSignalSource{byStrategy: map[string][]model.Signal{}})
	_ = h
	c := dial(t, srv)

	var ack map[string]any
	require.NoError(t, wsjson.Read(context.Background(), c, &ack))
	require.NoError(t, wsjson.Write(context.Background(), c, map[string]string{"type": "ping"}))
	require.NoError(t, wsjson.Read(context.Background(), c, &ack))
	assert.Equal(t, "pong", ack["type"])
}
