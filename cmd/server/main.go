package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitbook/internal/booking"
	"github.com/iliyamo/fitbook/internal/config"
	"github.com/iliyamo/fitbook/internal/database"
	"github.com/iliyamo/fitbook/internal/handler"
	"github.com/iliyamo/fitbook/internal/lock"
	"github.com/iliyamo/fitbook/internal/notify"
	"github.com/iliyamo/fitbook/internal/payment"
	"github.com/iliyamo/fitbook/internal/queue"
	"github.com/iliyamo/fitbook/internal/repository"
	"github.com/iliyamo/fitbook/internal/router"
	"github.com/iliyamo/fitbook/internal/scheduler"
)

func initLogger(path string) {
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	if os.Getenv("APP_ENV") == "local" {
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env loaded: %v", err)
		}
	}
	cfg := config.Load()
	if cfg.LogFile != "" {
		initLogger(cfg.LogFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg)

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Printf("redis unavailable, rate limiting and caching disabled: %v", err)
		rdb = nil
	}
	locker := openLocker(cfg, rdb)

	downstream := openNotifier(ctx, cfg)
	notifier := notify.NewAsync(downstream, notify.AsyncOptions{})

	var gateway payment.Gateway = payment.NewStub()
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		log.Printf("STRIPE_SECRET_KEY not set, using the stub payment gateway")
	}

	clock := clockwork.NewRealClock()
	engine := booking.NewEngine(store, locker, clock, notifier, gateway, cfg.Engine.Booking())

	sweeper := scheduler.New(engine, store, clock, cfg.Engine.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	if cfg.BookingLogConsumer {
		w := queue.NewEventLog(cfg.BookingLogFile)
		defer w.Close()
		go func() {
			if err := queue.NewConsumer(cfg.RabbitMQURL, w).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("booking-consumer: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	router.RegisterRoutes(e)
	router.RegisterBookings(e, handler.NewBookingHandler(engine), cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s store=%s lock=%s notify=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.LockDriver, cfg.NotifyDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Printf("notify shutdown: %v", err)
	}
	if c, ok := downstream.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func openStore(ctx context.Context, cfg config.Config) repository.Store {
	switch cfg.StoreDriver {
	case "memory":
		log.Printf("using the in-memory store; bookings are lost on restart")
		return repository.NewMemoryStore()
	case "mysql":
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			log.Fatalf("mysql: %v", err)
		}
		return repository.NewMySQLStore(db)
	}
	log.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	return nil
}

func openLocker(cfg config.Config, rdb *redis.Client) lock.Locker {
	switch cfg.LockDriver {
	case "local":
		return lock.NewLocal()
	case "redis":
		if rdb == nil {
			log.Fatalf("LOCK_DRIVER=redis needs a reachable Redis")
		}
		return lock.NewRedis(rdb, "fitbook:lock", cfg.Engine.LockTTL)
	}
	log.Fatalf("unknown LOCK_DRIVER %q", cfg.LockDriver)
	return nil
}

func openNotifier(ctx context.Context, cfg config.Config) notify.Dispatcher {
	switch cfg.NotifyDriver {
	case "log":
		return notify.Log{}
	case "amqp":
		return notify.NewAMQPPublisher(cfg.RabbitMQURL)
	case "sns":
		p, err := notify.NewSNSPublisher(ctx, cfg.SNSTopicARN)
		if err != nil {
			log.Fatalf("sns: %v", err)
		}
		return p
	}
	log.Fatalf("unknown NOTIFY_DRIVER %q", cfg.NotifyDriver)
	return nil
}
