package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"skatesync/pkg/log"
	"skatesync/pkg/queue"

	"github.com/gorilla/websocket"
)

// WSChannel is a Channel over a WebSocket session to the realtime
// broker. Control frames (subscribe) are plain JSON text messages;
// events are zstd-compressed binary frames.
type WSChannel struct {
	brokerURL  string
	eventQueue queue.Queue
	conn       *websocket.Conn
	writeMutex sync.Mutex
	gameMutex  sync.Mutex
	gameID     int64
}

type NewWSChannelOptions struct {
	BrokerURL  string
	EventQueue queue.Queue
}

func NewWSChannel(opts NewWSChannelOptions) *WSChannel {
	return &WSChannel{
		brokerURL:  opts.BrokerURL,
		eventQueue: opts.EventQueue,
	}
}

// Connect establishes the session with the broker.
func (c *WSChannel) Connect(ctx context.Context) error {
	log.Info("Connecting to realtime broker at %s", c.brokerURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.brokerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %v", err)
	}
	c.conn = conn
	return nil
}

type subscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func (c *WSChannel) Subscribe(ctx context.Context, gameID int64) error {
	c.gameMutex.Lock()
	c.gameID = gameID
	c.gameMutex.Unlock()

	frame := subscribeFrame{
		Action: "subscribe",
		Topic:  fmt.Sprintf("game.%d", gameID),
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe frame: %v", err)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("failed to send subscribe frame: %v", err)
	}

	return nil
}

func (c *WSChannel) Publish(_ context.Context, event *Event) error {
	b, err := SerializeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %v", err)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("failed to publish event: %v", err)
	}

	return nil
}

// HandleMessages reads broker frames and enqueues events for the
// coordinator until the connection closes or the context is done.
func (c *WSChannel) HandleMessages(ctx context.Context) error {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading broker message: %v", err)
			}
			log.Trace("Broker connection closed")
			return err
		}

		if msgType != websocket.BinaryMessage {
			log.Trace("Ignoring non-binary broker frame")
			continue
		}

		event, err := DeserializeEvent(message)
		if err != nil {
			log.Error("Failed to deserialize broker event: %v", err)
			continue
		}

		c.gameMutex.Lock()
		gameID := c.gameID
		c.gameMutex.Unlock()
		if event.GameID != gameID {
			log.Trace("Dropping event for game %d, subscribed to %d", event.GameID, gameID)
			continue
		}

		if err := c.eventQueue.Enqueue(event); err != nil {
			log.Error("Failed to enqueue broker event: %v", err)
		}
	}
}

func (c *WSChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
