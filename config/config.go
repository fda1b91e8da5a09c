package config

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
)

var Version string

// Used so that tests can generate fixed timestamps instead of relying on the wall clock
var Clock TimestampGenerator = RealTimestampGenerator{}

// Logger is the process-wide structured logger; swapped out in tests.
var Logger kitlog.Logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

// Directory roots for the on-disk state layout.
const (
	DefaultIntakeDir    = "./data/intake"
	DefaultWorkspaceDir = "./data/workspace"
	DefaultArtifactsDir = "./data/artifacts"
	DefaultAssetsDir    = "./data/assets"
	DefaultStatsDir     = "./data/stats"
)

// MaxInputFileSizeBytes is the hard ceiling enforced on /upload before the body is read in full.
const MaxInputFileSizeBytes = 5 * 1024 * 1024 * 1024 // 5 GiB

// Default worker concurrency; transcription/render are memory heavy so this defaults small.
const DefaultWorkerConcurrency = 2

// Soft/hard per-task time limits (§4.6.8).
const (
	DefaultTaskSoftTimeLimit = 30 * time.Minute
	DefaultTaskHardTimeLimit = 35 * time.Minute
)

// Default artifact/task retention and sweep cadence (§4.8, resolves the Open Question
// in §9 about a single source of truth for retention).
const (
	DefaultArtifactRetentionHours = 24
	DefaultSweepInterval          = 6 * time.Hour
	DefaultLogoUnusedWindow       = 30 * 24 * time.Hour
)

// Default download token TTL (§4.5) — minutes, short-lived.
const DefaultDownloadTokenTTL = 5 * time.Minute

// Translation batching defaults (§4.6.1).
const (
	DefaultTranslationBatchSize    = 20
	DefaultTranslationParallelism  = 2
	DefaultTranslationMaxRetries   = 2
	DefaultTranslationRetryBase    = 1 * time.Second
	DefaultTranslationRetryCap     = 10 * time.Second
	DefaultSourceAcquireMaxRetries = 3
)

// Queue depth above which the Intake API starts shedding load with 503+Retry-After (§5).
const DefaultMaxQueueDepth = 200

// RTL languages recognized by the subtitle emitter (§4.6.4).
var RTLLanguages = map[string]bool{
	"he": true,
	"ar": true,
	"fa": true,
	"ur": true,
}

// Transcription model downgrade ladder, largest first (§4.6.2).
var ModelDowngradeLadder = []string{"large", "medium", "base", "tiny"}
