package config

import "time"

// Cli holds every flag/env-recognized configuration value (§6 env var list).
type Cli struct {
	HTTPAddress         string
	MetricsAddress      string
	APIToken            string
	AllowedOrigins      []string
	AllowedSourceHosts  []string

	IntakeDir    string
	WorkspaceDir string
	ArtifactsDir string
	AssetsDir    string
	StatsDir     string

	BrokerURL           string
	RegistryConnString  string

	WorkerConcurrency    int
	TaskSoftTimeLimit    time.Duration
	TaskHardTimeLimit    time.Duration
	MaxQueueDepth        int

	DefaultModel          string
	AllowModelDowngrade   bool
	EnableRemoteDownload  bool
	TranslationBatchSize  int
	TranslationParallel   int
	ModelsDir             string

	RemoteTranscribeURL string
	RemoteTranscribeKey string
	FreeTranslationURL  string
	PaidTranslationURL  string
	PaidTranslationKey  string

	MaxFileSizeBytes       int64
	ArtifactRetentionHours int
	SweepInterval          time.Duration
	LogoUnusedWindow       time.Duration

	DownloadTokenTTL time.Duration
	TokenSigningKey  string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
}
