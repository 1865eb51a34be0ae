package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	amqpsink "live-quiz-service/internal/infra/amqp"
	"live-quiz-service/internal/infra/file"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/infra/sqlite"
	"live-quiz-service/internal/telemetry"
	transport "live-quiz-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

// closers are released in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runServer(parent context.Context, opts *Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var cleanup closers
	defer cleanup.closeAll()

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		cleanup.add(func() { _ = redisClient.Close() })
	}

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		cleanup.add(pool.Close)
	}

	loader, err := quizLoader(ctx, cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var (
		quizzes  app.QuizRepository
		sessions app.SessionRepository
		sinks    app.FanoutSink
	)
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
		sinks = append(sinks, redisinfra.NewSnapshotSink(redisClient, sessionTTL))
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
		sessions = memory.NewSessionStore()
	}
	if pool != nil {
		sinks = append(sinks, postgres.NewSessionSink(pool))
	}
	if cfg.SQLite.Path != "" {
		sink, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		cleanup.add(func() { _ = sink.Close() })
		sinks = append(sinks, sink)
	}
	if cfg.AMQP.URL != "" {
		queue := config.Or(cfg.AMQP.Queue, "quiz-session-events")
		client, err := amqpsink.Dial(cfg.AMQP.URL, queue)
		if err != nil {
			return err
		}
		cleanup.add(func() { _ = client.Close() })
		sinks = append(sinks, amqpsink.NewEventSink(client.Channel(), queue))
	}

	store := app.NewSessionStore(sessions, quizzes)
	gateway := app.NewGateway(store, app.NewBroadcaster(store, cfg.Sessions.Buffer), sinks)

	gate, err := auth.NewGate(cfg.Admin.Password, cfg.Admin.JWTSecret, config.TTLDuration(cfg.Admin.TokenTTL, auth.DefaultTokenTTL))
	if err != nil {
		return err
	}
	if cfg.Admin.Password == "" {
		slog.WarnContext(ctx, "server: admin password not set, admin login disabled")
	}

	port := config.Or(opts.Port, config.Or(cfg.Server.Port, "8080"))
	httpServer := newHTTPServer(cfg, port, newEngine(gateway, gate, cfg, opts))

	grpcServer := grpc.NewServer(telemetry.GRPCServerInterceptor())
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcLis, err := listenGRPC(cfg)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, "server: HTTP listening", "port", port, "sinks", len(sinks))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if grpcLis != nil {
		eg.Go(func() error {
			slog.InfoContext(ctx, "server: gRPC listening", "port", cfg.GRPC.Port)
			return grpcServer.Serve(grpcLis)
		})
	}
	eg.Go(func() error {
		gateway.RunReaper(ctx, config.TTLDuration(cfg.Sessions.IdleTimeout, 0))
		return nil
	})
	eg.Go(func() error {
		gateway.RunFlusher(ctx, config.TTLDuration(cfg.Sessions.FlushInterval, app.DefaultFlushInterval))
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(context.Background(), "server: shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "server: shutdown HTTP failed", "error", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(context.Background(), "server: stopped with error", "error", err)
		return err
	}
	slog.InfoContext(context.Background(), "server: shutdown completed")
	return nil
}

// newHTTPServer applies the configured timeouts. Websocket upgrades clear the
// connection deadlines, so WriteTimeout only bounds plain HTTP responses.
func newHTTPServer(cfg config.Config, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}
}

// listenGRPC binds the health endpoint port; it returns a nil listener when gRPC is disabled.
func listenGRPC(cfg config.Config) (net.Listener, error) {
	if cfg.GRPC.Port == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return nil, fmt.Errorf("grpc: listen: %w", err)
	}
	return lis, nil
}

func newEngine(gateway *app.Gateway, gate *auth.Gate, cfg config.Config, opts *Options) *gin.Engine {
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	e := gin.New()
	e.Use(gin.Logger(), gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Profile {
		pprof.Register(e, "/debug/pprof")
	}
	transport.NewHandler(gateway, gate, cfg.Server.PublicURL).Register(e)
	return e
}

func connectRedis(ctx context.Context, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	r := redis.NewUniversalClient(redisOptions(cfg))
	if err := telemetry.MonitorRedis(r); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return r, nil
}

// redisOptions makes per-call context deadlines authoritative so a stalled server
// cannot hold a command past its caller's timeout.
func redisOptions(cfg config.Config) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:                 []string{cfg.Redis.Addr},
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		DialTimeout:           2 * time.Second,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
		ContextTimeoutEnabled: true,
	}
}

func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.URL == "" {
		return nil, nil
	}
	if err := runMigrations(ctx, cfg); err != nil {
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return pool, nil
}

// quizLoader picks the content source: Postgres when configured (seeded from the quiz
// file), otherwise the quiz file itself.
func quizLoader(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	path := config.Or(cfg.Quiz.File, "config/quizzes.yaml")
	fromFile, err := file.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		slog.WarnContext(ctx, "server: quiz file not found", "path", path)
	}

	if pool == nil {
		if fromFile == nil {
			return memory.NewStaticQuizLoader(nil), nil
		}
		return fromFile, nil
	}

	pg := postgres.NewQuizLoader(pool)
	if fromFile != nil {
		for _, quiz := range fromFile.Quizzes() {
			if err := pg.SaveQuiz(ctx, quiz); err != nil {
				return nil, err
			}
		}
		slog.InfoContext(ctx, "server: seeded quizzes", "count", len(fromFile.Quizzes()))
	}
	return pg, nil
}
