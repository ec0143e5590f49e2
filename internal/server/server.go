package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rabbitmq/amqp091-go"

	"github.com/lorekeep/lorekeep/internal/database"
	"github.com/lorekeep/lorekeep/internal/queue"
	mid "github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/internal/storage"
	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/ai"
	oai "github.com/lorekeep/lorekeep/pkg/ai/ollama"
	gai "github.com/lorekeep/lorekeep/pkg/ai/openai"
	"github.com/lorekeep/lorekeep/pkg/ai/tei"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/search"
	"github.com/lorekeep/lorekeep/pkg/store/neo4j"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewModelClient builds the configured AI adapter. The worker uses the
// same construction path so both processes talk to the same models.
func NewModelClient() ai.ModelClient {
	adapter := util.GetEnv("AI_ADAPTER")

	switch adapter {
	case "ollama":
		client, err := oai.NewModelOllamaClient(oai.NewModelOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewModelOpenAIClient(gai.NewModelOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}
}

// NewReranker builds the cross-encoder client, or nil when no rerank
// endpoint is configured.
func NewReranker() ai.Reranker {
	client := tei.NewRerankClient(tei.NewRerankClientParams{
		BaseURL: util.GetEnvString("RERANK_URL", ""),
		ApiKey:  util.GetEnvString("RERANK_KEY", ""),
		Model:   util.GetEnvString("RERANK_MODEL", ""),
	})
	if client == nil {
		return nil
	}
	return client
}

// refreshOnExtract rebuilds the vector index each time a worker
// finishes an extraction run, so queries pick up new nodes without a
// restart.
func refreshOnExtract(ctx context.Context, engine *search.Engine, deliveries <-chan amqp091.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-deliveries:
			if !ok {
				return
			}
			if err := engine.Refresh(ctx); err != nil {
				logger.Error("Failed to refresh vector index after extraction", "err", err)
			}
		}
	}
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	jwksUrl := util.GetEnv("AUTH_URL") + "/jwks"
	k, err := keyfunc.NewDefault([]string{jwksUrl})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	graph, err := neo4j.NewGraphNeo4jStoreFromEnv(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to graph store", "err", err)
	}
	defer graph.Close(ctx)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	aiClient := NewModelClient()
	engine := search.NewEngine(graph, aiClient, NewReranker())
	if err := engine.Refresh(ctx); err != nil {
		logger.Error("Failed to build vector index, search starts degraded", "err", err)
	}

	deliveries, err := queue.SubscribeTopic(que, "extract.completed")
	if err != nil {
		logger.Error("Failed to subscribe to extraction events, index only refreshes on restart", "err", err)
	} else {
		go refreshOnExtract(ctx, engine, deliveries)
	}

	masterAPIKey := util.GetEnv("MASTER_API_KEY")
	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	masterUserRole := util.GetEnv("MASTER_USER_ROLE")

	app := &mid.App{
		DBConn:         conn,
		Queue:          ch,
		Key:            &k,
		S3:             s3,
		Graph:          graph,
		Engine:         engine,
		AiClient:       aiClient,
		MasterAPIKey:   masterAPIKey,
		MasterUserID:   masterUserID,
		MasterUserRole: masterUserRole,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
