package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-service/config"
	"chat-service/controller"
	"chat-service/database"
	"chat-service/delivery"
	"chat-service/presence"
	"chat-service/router"
	"chat-service/socketio"
	"chat-service/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	log.SetPrefix("chat-service: ")

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "chat-service",
	})

	rest.Use(cors.New())

	database.RedisConnect()
	database.PostgresConnect()

	workers := config.Int("DELIVERY_WORKERS", 4)

	queue, err := delivery.Connect(workers)
	if err != nil {
		log.Fatalf("rabbitmq connect: %v", err)
	}

	tracker := presence.NewTracker(
		database.Redis[0],
		config.Duration("PRESENCE_TTL_SECONDS", 60, time.Second),
	)

	hub := socketio.Init(rest, database.Redis[1])

	audit := store.NewAuditSink(database.Postgres)
	conversations := store.NewConversationStore(database.Postgres, database.Redis[0])
	messages := store.NewMessageStore(database.Postgres, audit)
	deadLetters := &delivery.GormDeadLetters{DB: database.Postgres}

	pool := &delivery.WorkerPool{
		Queue:       queue,
		Publisher:   queue,
		Presence:    tracker,
		Emitter:     hub,
		Messages:    messages,
		Receipts:    messages,
		DeadLetters: deadLetters,
		Concurrency: workers,
		MaxAttempts: config.Int("DELIVERY_MAX_ATTEMPTS", 5),
		BaseBackoff: config.Duration("DELIVERY_BACKOFF_MS", 300, time.Millisecond),
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := pool.Run(ctx); err != nil {
			log.Printf("delivery pool stopped: %v", err)
		}
	}()

	router.Rest(rest, &router.RestDeps{
		Hub:           hub,
		Conversations: &controller.ConversationDeps{Conversations: conversations},
		Messages: &controller.MessageDeps{
			Conversations: conversations,
			Messages:      messages,
			Hub:           hub,
		},
		Admin: &controller.AdminDeps{DeadLetters: deadLetters, Audit: audit},
	})

	router.Socket(hub.Server(), &router.SocketDeps{
		Hub:           hub,
		Conversations: conversations,
		Messages:      messages,
		Presence:      tracker,
		Retries:       queue,
	})

	go rest.Listen(fmt.Sprintf(":%s", config.Config("SERVER_PORT")))

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	cancel()
	hub.Close()
	queue.Close()
	os.Exit(0)
}
