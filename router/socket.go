package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"chat-service/delivery"
	"chat-service/model"
	"chat-service/presence"
	"chat-service/socketio"
	"chat-service/store"
	"chat-service/utils"

	"github.com/zishang520/socket.io/v2/socket"
)

// RetryEnqueuer hands a redelivery request to the delivery pipeline.
type RetryEnqueuer interface {
	EnqueueRetry(ctx context.Context, conversationID, messageID, targetUserID uint, attempt int) error
}

// HubEmitter is the slice of the hub the socket handlers touch: room and
// user fan-out plus the runtime counters.
type HubEmitter interface {
	EmitToRoom(room socket.Room, event string, payload any)
	EmitToUser(userID uint, event string, payload any) error
	SocketConnected()
	SocketDisconnected()
	MessageSent()
	MessageAcked()
}

// SocketDeps carries everything the socket event handlers dispatch into.
type SocketDeps struct {
	Hub           HubEmitter
	Conversations *store.ConversationStore
	Messages      *store.MessageStore
	Presence      *presence.Tracker
	Retries       RetryEnqueuer
}

// eventContext is the per-connection handler context: the socket itself plus
// the identity its token verified to.
type eventContext struct {
	client *socket.Socket
	userID uint
}

// eventHandler is the uniform handler signature behind the dispatch table.
// The returned map is merged into the {ok:true} acknowledgement; an error
// becomes an {ok:false, error} acknowledgement, never a dropped connection.
type eventHandler func(ctx context.Context, ec *eventContext, payload any) (map[string]any, error)

type roomPayload struct {
	ConversationID uint `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID  uint               `json:"conversationId"`
	ClientMessageID string             `json:"clientMessageId"`
	Content         string             `json:"content"`
	ParentMessageID *uint              `json:"parentMessageId"`
	Attachments     []model.Attachment `json:"attachments"`
}

type messageRefPayload struct {
	ConversationID uint `json:"conversationId"`
	MessageID      uint `json:"messageId"`
}

type retryPayload struct {
	ConversationID uint `json:"conversationId"`
	MessageID      uint `json:"messageId"`
	TargetUserID   uint `json:"targetUserId"`
}

type reactionPayload struct {
	ConversationID uint   `json:"conversationId"`
	MessageID      uint   `json:"messageId"`
	Emoji          string `json:"emoji"`
}

// Socket registers the event dispatch table on every authenticated
// connection. Connection lifecycle: the handshake middleware already verified
// the token, so a socket arriving here is Authenticated; it joins rooms
// explicitly, and disconnect clears presence and local room membership.
func Socket(server *socket.Server, deps *SocketDeps) {
	handlers := deps.handlers()

	server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)

		claims, ok := client.Data().(*utils.TokenMetadata)
		if !ok {
			client.Disconnect(true)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			client.Disconnect(true)
			return
		}

		ec := &eventContext{client: client, userID: userID}
		deps.Hub.SocketConnected()
		if err := deps.Presence.SetOnline(context.Background(), userID); err != nil {
			log.Printf("presence online failed: user=%d: %v", userID, err)
		}

		for event, handler := range handlers {
			event, handler := event, handler
			client.On(event, func(args ...any) {
				payload, ack := splitArgs(args)
				result, err := handler(context.Background(), ec, payload)
				if ack == nil {
					if err != nil {
						log.Printf("socket event %s failed: user=%d: %v", event, ec.userID, err)
					}
					return
				}
				if err != nil {
					ack([]any{map[string]any{"ok": false, "error": errorCode(err)}}, nil)
					return
				}
				response := map[string]any{"ok": true}
				for key, value := range result {
					response[key] = value
				}
				ack([]any{response}, nil)
			})
		}

		client.On("disconnect", func(...any) {
			deps.Hub.SocketDisconnected()
			if err := deps.Presence.SetOffline(context.Background(), userID); err != nil {
				log.Printf("presence offline failed: user=%d: %v", userID, err)
			}
		})
	})
}

func (d *SocketDeps) handlers() map[string]eventHandler {
	return map[string]eventHandler{
		"room.join":       d.handleRoomJoin,
		"room.leave":      d.handleRoomLeave,
		"presence.ping":   d.handlePresencePing,
		"typing.start":    d.typingHandler(true),
		"typing.stop":     d.typingHandler(false),
		"message.send":    d.handleMessageSend,
		"message.ack":     d.handleMessageAck,
		"message.retry":   d.handleMessageRetry,
		"receipt.read":    d.handleReceiptRead,
		"reaction.add":    d.reactionHandler("add"),
		"reaction.remove": d.reactionHandler("remove"),
		"call.offer":      d.callHandler("call.offer"),
		"call.answer":     d.callHandler("call.answer"),
		"call.ice":        d.callHandler("call.ice"),
		"call.hangup":     d.callHandler("call.hangup"),
	}
}

func (d *SocketDeps) handleRoomJoin(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in roomPayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	if err := d.Conversations.EnsureMember(ctx, ec.userID, in.ConversationID); err != nil {
		return nil, err
	}
	ec.client.Join(socketio.ConversationRoom(in.ConversationID))
	return map[string]any{"conversationId": in.ConversationID}, nil
}

func (d *SocketDeps) handleRoomLeave(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in roomPayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	ec.client.Leave(socketio.ConversationRoom(in.ConversationID))
	return nil, nil
}

func (d *SocketDeps) handlePresencePing(ctx context.Context, ec *eventContext, _ any) (map[string]any, error) {
	if err := d.Presence.SetOnline(ctx, ec.userID); err != nil {
		return nil, fmt.Errorf("%w: presence refresh: %v", store.ErrTransient, err)
	}
	ec.client.Emit("presence.updated", map[string]any{"userId": ec.userID, "online": true})
	return nil, nil
}

func (d *SocketDeps) typingHandler(isTyping bool) eventHandler {
	return func(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
		var in roomPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		if err := d.Conversations.EnsureMember(ctx, ec.userID, in.ConversationID); err != nil {
			return nil, err
		}
		// To() excludes the sender; the typist already knows.
		ec.client.To(socketio.ConversationRoom(in.ConversationID)).Emit("typing.updated", map[string]any{
			"conversationId": in.ConversationID,
			"userId":         ec.userID,
			"isTyping":       isTyping,
		})
		return nil, nil
	}
}

func (d *SocketDeps) handleMessageSend(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in sendMessagePayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	if err := d.Conversations.EnsureMember(ctx, ec.userID, in.ConversationID); err != nil {
		return nil, err
	}

	message, created, err := d.Messages.CreateIdempotent(ctx, store.CreateMessageInput{
		ConversationID:  in.ConversationID,
		SenderID:        ec.userID,
		ClientMessageID: in.ClientMessageID,
		Content:         in.Content,
		ParentMessageID: in.ParentMessageID,
		Attachments:     in.Attachments,
	})
	if err != nil {
		return nil, err
	}

	// A duplicate submission acks with the original row but is not
	// re-broadcast: the room saw this message exactly once already.
	if created {
		d.Hub.MessageSent()
		d.Hub.EmitToRoom(socketio.ConversationRoom(in.ConversationID), "message.new", message)
	}

	return map[string]any{
		"messageId": message.ID,
		"createdAt": message.CreatedAt,
	}, nil
}

func (d *SocketDeps) handleMessageAck(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in messageRefPayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	d.Hub.MessageAcked()
	d.Hub.EmitToRoom(socketio.ConversationRoom(in.ConversationID), "message.delivery", map[string]any{
		"messageId":   in.MessageID,
		"userId":      ec.userID,
		"deliveredAt": time.Now().UTC().Format(time.RFC3339),
	})
	return nil, nil
}

// handleMessageRetry enqueues redelivery for a recipient that missed the
// original fan-out. An online target is re-emitted to directly instead of
// queued, so the pipeline only carries genuinely unreachable recipients.
func (d *SocketDeps) handleMessageRetry(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in retryPayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	if err := d.Conversations.EnsureMember(ctx, ec.userID, in.ConversationID); err != nil {
		return nil, err
	}

	online, err := d.Presence.IsOnline(ctx, in.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: presence check: %v", store.ErrTransient, err)
	}
	if online {
		message, err := d.Messages.GetByID(ctx, in.MessageID)
		if err != nil {
			return nil, err
		}
		if err := d.Hub.EmitToUser(in.TargetUserID, "message.new", message); err != nil {
			return nil, fmt.Errorf("%w: re-emit: %v", store.ErrTransient, err)
		}
		return map[string]any{"queued": false}, nil
	}

	if err := d.Retries.EnqueueRetry(ctx, in.ConversationID, in.MessageID, in.TargetUserID, 1); err != nil {
		return nil, fmt.Errorf("%w: enqueue retry: %v", store.ErrTransient, err)
	}
	return map[string]any{"queued": true}, nil
}

func (d *SocketDeps) handleReceiptRead(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
	var in messageRefPayload
	if err := decodePayload(payload, &in); err != nil {
		return nil, err
	}
	if err := d.Messages.MarkRead(ctx, in.MessageID, ec.userID); err != nil {
		return nil, err
	}
	if err := d.Conversations.AdvanceLastRead(ctx, ec.userID, in.ConversationID, in.MessageID); err != nil {
		log.Printf("advance last read failed: user=%d conversation=%d: %v", ec.userID, in.ConversationID, err)
	}
	d.Hub.EmitToRoom(socketio.ConversationRoom(in.ConversationID), "receipt.updated", map[string]any{
		"messageId": in.MessageID,
		"userId":    ec.userID,
		"readAt":    time.Now().UTC().Format(time.RFC3339),
	})
	return nil, nil
}

func (d *SocketDeps) reactionHandler(kind string) eventHandler {
	return func(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
		var in reactionPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}

		var err error
		if kind == "add" {
			err = d.Messages.AddReaction(ctx, in.MessageID, ec.userID, in.Emoji)
		} else {
			err = d.Messages.RemoveReaction(ctx, in.MessageID, ec.userID, in.Emoji)
		}
		if err != nil {
			return nil, err
		}

		d.Hub.EmitToRoom(socketio.ConversationRoom(in.ConversationID), "reaction.updated", map[string]any{
			"type":           kind,
			"conversationId": in.ConversationID,
			"messageId":      in.MessageID,
			"emoji":          in.Emoji,
			"userId":         ec.userID,
		})
		return nil, nil
	}
}

// callHandler forwards signaling payloads verbatim to the room, tagging the
// sender. The hub interprets nothing beyond the conversation id.
func (d *SocketDeps) callHandler(event string) eventHandler {
	return func(ctx context.Context, ec *eventContext, payload any) (map[string]any, error) {
		var in roomPayload
		if err := decodePayload(payload, &in); err != nil {
			return nil, err
		}
		if err := d.Conversations.EnsureMember(ctx, ec.userID, in.ConversationID); err != nil {
			return nil, err
		}

		forwarded := map[string]any{}
		if fields, ok := payload.(map[string]any); ok {
			for key, value := range fields {
				forwarded[key] = value
			}
		}
		forwarded["conversationId"] = in.ConversationID
		forwarded["fromUserId"] = ec.userID

		d.Hub.EmitToRoom(socketio.ConversationRoom(in.ConversationID), event, forwarded)
		return nil, nil
	}
}

// splitArgs separates the event payload from the client's optional ack
// callback, which socket.io passes as the trailing argument.
func splitArgs(args []any) (any, func([]any, error)) {
	if len(args) == 0 {
		return nil, nil
	}
	if ack, ok := args[len(args)-1].(func([]any, error)); ok {
		if len(args) == 1 {
			return nil, ack
		}
		return args[0], ack
	}
	return args[0], nil
}

// decodePayload re-shapes the codec-decoded payload into the handler's typed
// struct via a json round trip.
func decodePayload(payload any, v any) error {
	if payload == nil {
		return fmt.Errorf("%w: missing payload", store.ErrInvalidInput)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, store.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, store.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, store.ErrTransient):
		return "TRANSIENT"
	default:
		return "INTERNAL"
	}
}

var (
	_ RetryEnqueuer = (*delivery.Queue)(nil)
	_ HubEmitter    = (*socketio.Hub)(nil)
)
