package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	CFBaseURL    string
	CFTimeoutSec int
	CFRetryMax   int

	ChallengeTTLSec   int
	BattleDurationSec int
	SubmissionCount   int

	ReaperIntervalSec int

	RatingSyncIntervalSec   int
	RatingSyncStartDelaySec int
	RatingSyncBatchSize     int
	RatingSyncUserPauseMs   int
	RatingSyncBatchPauseMs  int

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:   ":8080",
		CFBaseURL:    "https://codeforces.com/api",
		CFTimeoutSec: 10,
		CFRetryMax:   3,

		ChallengeTTLSec:   300,
		BattleDurationSec: 3600,
		SubmissionCount:   20,

		ReaperIntervalSec: 60,

		RatingSyncIntervalSec:   6 * 3600,
		RatingSyncStartDelaySec: 60,
		RatingSyncBatchSize:     5,
		RatingSyncUserPauseMs:   500,
		RatingSyncBatchPauseMs:  2000,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("CF_API_BASE_URL")); v != "" {
		cfg.CFBaseURL = v
	}

	setPositive(&cfg.CFTimeoutSec, "CF_API_TIMEOUT_SEC")
	setPositive(&cfg.CFRetryMax, "CF_API_RETRY_MAX")
	setPositive(&cfg.ChallengeTTLSec, "CHALLENGE_TTL_SEC")
	setPositive(&cfg.BattleDurationSec, "BATTLE_DURATION_SEC")
	setPositive(&cfg.SubmissionCount, "SUBMISSION_FETCH_COUNT")
	setPositive(&cfg.ReaperIntervalSec, "REAPER_INTERVAL_SEC")
	setPositive(&cfg.RatingSyncIntervalSec, "RATING_SYNC_INTERVAL_SEC")
	setPositive(&cfg.RatingSyncStartDelaySec, "RATING_SYNC_START_DELAY_SEC")
	setPositive(&cfg.RatingSyncBatchSize, "RATING_SYNC_BATCH_SIZE")
	setPositive(&cfg.RatingSyncUserPauseMs, "RATING_SYNC_USER_PAUSE_MS")
	setPositive(&cfg.RatingSyncBatchPauseMs, "RATING_SYNC_BATCH_PAUSE_MS")

	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func setPositive(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
