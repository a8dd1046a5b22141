package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SMohammed-suhail/ClinicCare/internal/config"
	"github.com/SMohammed-suhail/ClinicCare/internal/engine"
	"github.com/SMohammed-suhail/ClinicCare/internal/feed"
	"github.com/SMohammed-suhail/ClinicCare/internal/httpapi"
	"github.com/SMohammed-suhail/ClinicCare/internal/hub"
	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store/postgres"
	"github.com/SMohammed-suhail/ClinicCare/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type snapshotEnvelope struct {
	Type      string                 `json:"type"`
	Records   []models.PatientRecord `json:"records"`
	CreatedAt time.Time              `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("cliniccare")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{SessionTTL: cfg.SessionTTL})
	eng := engine.New(st, engine.Options{})
	fd := feed.New(st)
	h := hub.New()

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()

	engineCh, cancelEngineSub := fd.Subscribe()
	defer cancelEngineSub()
	go func() {
		for snapshot := range engineCh {
			eng.Apply(snapshot)
			payload, err := json.Marshal(snapshotEnvelope{
				Type:      "patients.snapshot",
				Records:   snapshot,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				log.Printf("snapshot encode error: %v", err)
				continue
			}
			h.Broadcast(payload)
		}
	}()
	go fd.Run(feedCtx, cfg.FeedPollInterval, cfg.FeedBatchSize)

	handler := httpapi.NewHandler(eng, st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	sockjsHandler := sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		sessionID := httpapi.SessionIDFromRequest(session.Request())
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		if _, _, err := st.GetSession(context.Background(), sessionID); err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		// New clients get the current view before the next change lands.
		initial, err := json.Marshal(snapshotEnvelope{
			Type:      "patients.snapshot",
			Records:   eng.Snapshot(),
			CreatedAt: time.Now().UTC(),
		})
		if err == nil {
			_ = session.Send(string(initial))
		}

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			if _, err := session.Recv(); err != nil {
				return
			}
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", sockjsHandler)
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	root := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "cliniccare")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("cliniccare listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopFeed()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
