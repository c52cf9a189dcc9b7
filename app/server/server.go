package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"arx/app/api"
	"arx/app/middleware"
	"arx/extract"
	"arx/index"
	"arx/model"
	"arx/rag"
	"arx/store"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    50 * 1024 * 1024,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger

	history *store.PostgresHistory
	closers []func()
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	for _, close := range s.closers {
		close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	history, err := store.NewPostgresHistory(ctx, postgresConnStr())
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
		return
	}
	s.closers = append(s.closers, func() { history.Close() })
	if err := history.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
		return
	}

	tokenizer, err := model.NewTokenizer()
	if err != nil {
		log.Fatal("error to load tokenizer: ", err)
		return
	}

	embedder := model.NewEmbedder()
	idx, err := s.buildIndex(ctx, embedder)
	if err != nil {
		log.Fatal("error to open vector index: ", err)
		return
	}

	engine := rag.NewEngine(
		idx,
		model.NewGenerator(),
		model.NewScorer(),
		extract.NewService(),
		tokenizer,
		rag.DefaultOptions(),
	)

	var (
		app           = fiber.New(config)
		checkHandler  = api.NewCheckHandler()
		askHandler    = api.NewAskHandler(engine, history)
		threadHandler = api.NewThreadHandler(history)
		adminHandler  = api.NewAdminHandler(engine)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
		admin = app.Group("/admin", middleware.AdminAuth(os.Getenv("ADMIN_TOKEN")))
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/ask", askHandler.HandleAsk)
	apiv1.Get("/history", threadHandler.HandleHistory)
	apiv1.Get("/chats", threadHandler.HandleChats)
	apiv1.Get("/threads", threadHandler.HandleListThreads)
	apiv1.Post("/threads", threadHandler.HandleCreateThread)
	apiv1.Put("/threads/:id", threadHandler.HandleRenameThread)
	apiv1.Delete("/threads/:id", threadHandler.HandleDeleteThread)

	admin.Post("/reload_index", adminHandler.HandleReloadIndex)
	admin.Post("/reset_index", adminHandler.HandleResetIndex)
	admin.Post("/add_document", adminHandler.HandleAddDocument)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
	}
}

// buildIndex picks the vector index backend from INDEX_BACKEND:
// "postgres" for pgvector, anything else for the local flat file.
func (s *Server) buildIndex(ctx context.Context, embedder model.Embedder) (index.Index, error) {
	switch os.Getenv("INDEX_BACKEND") {
	case "postgres":
		idx, err := index.NewPostgresIndex(ctx, postgresConnStr(), embedder)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, idx.Close)
		return idx, nil
	default:
		path := os.Getenv("INDEX_PATH")
		if path == "" {
			path = "index/arx_index.json"
		}
		return index.LoadFile(path, embedder)
	}
}

func postgresConnStr() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}
