package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/park285/cf-duels/internal/config"
	"github.com/park285/cf-duels/internal/cfapi"
	"github.com/park285/cf-duels/internal/duel"
	"github.com/park285/cf-duels/internal/httpapi"
	"github.com/park285/cf-duels/internal/msgcat"
	"github.com/park285/cf-duels/internal/obslog"
	"github.com/park285/cf-duels/internal/sched"
	"github.com/park285/cf-duels/internal/userstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis init error", zap.Error(err))
	}

	users, err := userstore.NewRepository(cfg.DatabaseURL)
	if err != nil {
		obslog.L().Fatal("user repository init error", zap.Error(err))
	}

	msgs, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		obslog.L().Fatal("message catalog error", zap.Error(err))
	}

	cf := cfapi.NewClient(cfg.CFBaseURL,
		cfapi.WithTimeout(time.Duration(cfg.CFTimeoutSec)*time.Second),
		cfapi.WithRetry(cfg.CFRetryMax),
	)

	mgr := duel.NewManager(rdb, users,
		duel.NewSelector(cf),
		duel.NewResolver(cf, cfg.SubmissionCount),
		msgs,
		duel.ManagerConfig{
			ChallengeTTL:   time.Duration(cfg.ChallengeTTLSec) * time.Second,
			BattleDuration: time.Duration(cfg.BattleDurationSec) * time.Second,
		},
	)

	ratingSync := sched.NewRatingSync(users, cf,
		cfg.RatingSyncBatchSize,
		time.Duration(cfg.RatingSyncUserPauseMs)*time.Millisecond,
		time.Duration(cfg.RatingSyncBatchPauseMs)*time.Millisecond,
	)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	runner, err := sched.Start(jobCtx, mgr, ratingSync, sched.Config{
		ReaperInterval:       time.Duration(cfg.ReaperIntervalSec) * time.Second,
		RatingSyncInterval:   time.Duration(cfg.RatingSyncIntervalSec) * time.Second,
		RatingSyncStartDelay: time.Duration(cfg.RatingSyncStartDelaySec) * time.Second,
	})
	if err != nil {
		cancelJobs()
		obslog.L().Fatal("scheduler init error", zap.Error(err))
	}

	srv := httpapi.NewServer(mgr, msgs)
	go func() {
		obslog.L().Info("api_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			obslog.L().Fatal("api serve error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("shutdown")
	cancelJobs()
	_ = runner.Shutdown()
	_ = users.Close()
	_ = rdb.Close()
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
