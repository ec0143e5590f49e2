package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/internal/database"
	"github.com/lorekeep/lorekeep/internal/queue"
	"github.com/lorekeep/lorekeep/internal/storage"
	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/ai"
	oai "github.com/lorekeep/lorekeep/pkg/ai/ollama"
	gai "github.com/lorekeep/lorekeep/pkg/ai/openai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/checkpoint"
	"github.com/lorekeep/lorekeep/pkg/extract"
	"github.com/lorekeep/lorekeep/pkg/fingerprint"
	"github.com/lorekeep/lorekeep/pkg/leaselock"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/logger/console"
	"github.com/lorekeep/lorekeep/pkg/store/neo4j"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// ModelClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.ModelClient

	switch adapter {
	case "ollama":
		client, err := oai.NewModelOllamaClient(oai.NewModelOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewModelOpenAIClient(gai.NewModelOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init graph store
	graph, err := neo4j.NewGraphNeo4jStoreFromEnv(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to graph store", "err", err)
	}
	defer graph.Close(ctx)

	// Fingerprints survive restarts through Postgres
	fingerprints := fingerprint.New(fingerprint.Options{}, fingerprint.NewPgPersister(pgConn))
	if err := fingerprints.Load(ctx); err != nil {
		logger.Fatal("Failed to load fingerprints", "err", err)
	}

	checkpoints := checkpoint.NewManager(
		util.GetEnvString("CHECKPOINT_PATH", "data/checkpoint.json"),
		int(util.GetEnvNumeric("CHECKPOINT_SAVE_EVERY", checkpoint.DefaultSaveEveryBatches)),
	)
	if err := checkpoints.Load(); err != nil {
		logger.Fatal("Failed to load checkpoint", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	handler := &queue.Handler{
		Store:        graph,
		Embedder:     aiClient,
		Completer:    aiClient,
		Breaker:      breaker.New(breaker.Options{}),
		Fingerprints: fingerprints,
		Checkpoints:  checkpoints,
		Fallback:     extract.NewKeywordFallback(),
		S3:           s3Client,
		Locks:        leaselock.New(pgConn),
		Channel:      ch,
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is in
	// flight across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	queues := []string{queue.ExtractQueue, queue.IngestQueue}
	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ExtractQueue:
					processingErr = handler.ProcessExtractJob(ctx, qm.msg.Body)
				case queue.IngestQueue:
					processingErr = handler.ProcessIngestJob(ctx, qm.msg.Body)
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()

	if err := checkpoints.Save(); err != nil {
		logger.Error("Failed to save final checkpoint", "err", err)
	}
	stats := checkpoints.Stats()
	logger.Info(
		"Shutdown signal received, exiting...",
		"nodes_created", stats.TotalNodesCreated,
		"decisions", stats.Decisions,
		"patterns", stats.Patterns,
		"failures", stats.Failures,
	)
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "text/plain",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "text/plain",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
