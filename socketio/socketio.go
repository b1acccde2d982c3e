package socketio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"chat-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// Metrics counts hub activity for the /metrics endpoint.
type Metrics struct {
	ActiveSockets int64 `json:"activeSockets"`
	MessagesSent  int64 `json:"messagesSent"`
	MessageAcks   int64 `json:"messageAcks"`
}

// Hub owns this process's socket server and its room registry. Cross-process
// fan-out rides the redis adapter: every process subscribes to the same bus
// and re-emits received events to its local room members only.
type Hub struct {
	server *socket.Server

	activeSockets int64
	messagesSent  int64
	messageAcks   int64
}

// Init mounts the socket.io server on the fiber app. The handshake middleware
// verifies the access token; a connection that fails verification is rejected
// outright, never left half-open.
func Init(app *fiber.App, adapterRedis *redis.Client) *Hub {
	log.DEBUG = false

	options := socket.DefaultServerOptions()
	options.SetServeClient(true)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetConnectTimeout(10 * time.Second)
	options.SetAdapter(&adapter.RedisAdapterBuilder{
		Redis: r_type.NewRedisClient(context.Background(), adapterRedis),
		Opts:  &adapter.RedisAdapterOptions{},
	})

	server := socket.NewServer(nil, nil)
	hub := &Hub{server: server}

	server.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, ok := client.Conn().Request().Query().Get("token")
		if !ok {
			next(socket.NewExtendedError("Unauthorized", nil))
			return
		}

		claims, err := utils.VerifyToken(token, "JWT_ACCESS_KEY")
		if err != nil {
			next(socket.NewExtendedError("Unauthorized", nil))
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			next(socket.NewExtendedError("Unauthorized", nil))
			return
		}

		client.SetData(claims)
		client.Join(UserRoom(userID))
		next(nil)
	})

	app.Get("/socket.io/", adaptor.HTTPHandler(server.ServeHandler(options)))
	app.Post("/socket.io/", adaptor.HTTPHandler(server.ServeHandler(options)))

	return hub
}

// Server exposes the underlying socket server for handler registration.
func (h *Hub) Server() *socket.Server {
	return h.server
}

// ConversationRoom is the per-conversation room name.
func ConversationRoom(conversationID uint) socket.Room {
	return socket.Room(fmt.Sprintf("conv:%d", conversationID))
}

// UserRoom is the per-user room every authenticated socket joins, used for
// targeted redelivery.
func UserRoom(userID uint) socket.Room {
	return socket.Room(fmt.Sprintf("user:%d", userID))
}

// EmitToRoom broadcasts to all members of a room across every process.
func (h *Hub) EmitToRoom(room socket.Room, event string, payload any) {
	h.server.To(room).Emit(event, payload)
}

// EmitToUser broadcasts to every socket of one user across every process.
func (h *Hub) EmitToUser(userID uint, event string, payload any) error {
	h.server.To(UserRoom(userID)).Emit(event, payload)
	return nil
}

func (h *Hub) SocketConnected()    { atomic.AddInt64(&h.activeSockets, 1) }
func (h *Hub) SocketDisconnected() { atomic.AddInt64(&h.activeSockets, -1) }
func (h *Hub) MessageSent()        { atomic.AddInt64(&h.messagesSent, 1) }
func (h *Hub) MessageAcked()       { atomic.AddInt64(&h.messageAcks, 1) }

// Snapshot returns current counter values.
func (h *Hub) Snapshot() Metrics {
	return Metrics{
		ActiveSockets: atomic.LoadInt64(&h.activeSockets),
		MessagesSent:  atomic.LoadInt64(&h.messagesSent),
		MessageAcks:   atomic.LoadInt64(&h.messageAcks),
	}
}

// Close shuts the socket server down.
func (h *Hub) Close() {
	h.server.Close(nil)
}
