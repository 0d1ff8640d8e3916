package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/db"
	"github.com/zhouzirui/chat-relay/backend/internal/handler"
	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/service/ai"
	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
	"github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/qna"
	"github.com/zhouzirui/chat-relay/backend/internal/service/relay"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database.URL)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if cfg.Database.PersonaSeedFile != "" {
		items, err := persona.LoadSeedFile(cfg.Database.PersonaSeedFile)
		if err != nil {
			return err
		}
		if err := db.SeedPersonas(ctx, gormDB, items); err != nil {
			return err
		}
		log.Printf("seeded %d personas from %s", len(items), cfg.Database.PersonaSeedFile)
	}

	personaStore := persona.NewDBStore(gormDB)
	chatService := chat.NewService(gormDB)

	// Initialize answer backend
	var answers relay.Answerer
	switch cfg.Answer.Backend {
	case config.BackendArk:
		aiService, err := ai.NewService(ctx, personaStore, chatService, cfg.AI)
		if err != nil {
			return fmt.Errorf("failed to initialize AI service: %w", err)
		}
		answers = aiService
		log.Printf("answer backend: ark model %s", cfg.AI.Model)
	default:
		answers = answer.NewClient(answer.Config{
			LLMServerURL: cfg.Answer.LLMServerURL,
			MCPServerURL: cfg.Answer.MCPServerURL,
			Timeout:      cfg.Answer.Timeout,
		})
		log.Printf("answer backend: %s", cfg.Answer.LLMServerURL)
	}

	// Initialize QnA cache
	var (
		relayCache relay.Cache
		qnaCache   *qna.Cache
	)
	if cfg.Database.FAQURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.FAQURL)
		if err != nil {
			return fmt.Errorf("failed to connect to FAQ database: %w", err)
		}
		defer pool.Close()

		qnaCache = qna.NewCache(qna.NewRepository(pool), qna.Options{
			FAQTopK:   cfg.QnA.FAQTopK,
			TermsTopK: cfg.QnA.TermsTopK,
		})
		defer qnaCache.Wait()

		if err := qnaCache.Warm(ctx); err != nil {
			log.Printf("warning: failed to warm qna cache: %v", err)
		} else {
			faqs, terms := qnaCache.Len()
			log.Printf("qna cache warmed faqs=%d terms=%d", faqs, terms)
		}

		if cfg.QnA.RefreshCron != "" {
			refresher, err := qna.NewRefresher(qnaCache, cfg.QnA.RefreshCron, 0)
			if err != nil {
				return err
			}
			refresher.Start()
			defer refresher.Stop()
			log.Printf("qna cache refresh scheduled %q", cfg.QnA.RefreshCron)
		}
		relayCache = qnaCache
	} else {
		log.Println("FAQ_DATABASE_URL 未配置，跳过 QnA 缓存")
	}

	relayService := relay.NewService(relay.NewRegistry(), chatService, answers, relayCache, personaStore, relay.Options{})

	deps := handler.Deps{
		Personas:       personaStore,
		Chats:          chatService,
		Relay:          relayService,
		FAQTopK:        cfg.QnA.FAQTopK,
		TermsTopK:      cfg.QnA.TermsTopK,
		FrontendOrigin: cfg.Server.FrontendOrigin,
	}
	if qnaCache != nil {
		deps.QnA = qnaCache
	}

	return startServer(ctx, cfg.Server, handler.NewRouter(deps), relayService.Shutdown)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, drain func(context.Context) error) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat relay backend listening on %s", addr)
	if err := runServer(ctx, srv, drain); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// runServer serves until ctx is done. Shutdown does not track hijacked
// WebSocket connections, so drain closes and waits for them before the
// deferred store closes run.
func runServer(ctx context.Context, srv *http.Server, drain func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if drain != nil {
			if err := drain(shutdownCtx); err != nil {
				log.Printf("warning: %v", err)
			}
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
