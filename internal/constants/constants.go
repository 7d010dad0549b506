package constants

import "time"

const (
	DraftPickTimeout  = 10 * time.Minute
	LobbySetupTimeout = 15 * time.Minute
	QueueAFKTimeout   = 30 * time.Minute
	AFKSweepInterval  = 1 * time.Minute
)

const (
	StartingPoints             = 1000
	DefaultPointsWin           = 30
	DefaultPointsLoss          = -30
	DefaultPointsMVP           = 10
	DefaultTimeoutMinutes      = 30
	DefaultNoProofPenalty      = 100
	DefaultProofTimeoutMinutes = 30
	DefaultQueueSize           = 10
)

const (
	MinQueueSize      = 4
	MaxQueueSize      = 20
	MinPoints         = -10000
	MaxPoints         = 10000
	MinTimeoutMinutes = 1
	MaxTimeoutMinutes = 1440
)

const (
	LeaderboardPerPage = 10
	HistoryPerPage     = 5
	RadiantTopN        = 5
)

const (
	SettleMaxRetries  = 5
	SettleBaseBackoff = 500 * time.Millisecond
	SettleTimeout     = 2 * time.Minute
	DatabaseTimeout   = 5 * time.Second
	RequestTimeout    = 30 * time.Second
	WebhookTimeout    = 10 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
