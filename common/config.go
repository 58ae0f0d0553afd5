package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

const defaultContentStoreTimeout = time.Second * 1
const defaultPubSubPullInterval = time.Millisecond * 2000

var (
	// Log is the configured logger
	Log *logger.Logger

	// DefaultNatsStream is the JetStream stream carrying all protocol topics
	DefaultNatsStream string

	// ContentStoreURL is the content-addressed store API endpoint
	ContentStoreURL string

	// ContentStoreTimeout bounds content store downloads and resolves
	ContentStoreTimeout time.Duration

	// LedgerRPCURL is the JSON-RPC endpoint of the ledger gateway
	LedgerRPCURL string

	// PubSubPullInterval is the polling interval for topic subscriptions
	PubSubPullInterval time.Duration
)

func init() {
	godotenv.Load()

	requireLogger()
	requireEnvironment()
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("rent", lvl, endpoint)
}

func requireEnvironment() {
	DefaultNatsStream = os.Getenv("NATS_STREAM")
	if DefaultNatsStream == "" {
		DefaultNatsStream = "rent"
	}

	ContentStoreURL = os.Getenv("IPFS_API_URL")
	if ContentStoreURL == "" {
		ContentStoreURL = "http://localhost:5001"
	}

	ContentStoreTimeout = defaultContentStoreTimeout
	if os.Getenv("IPFS_TIMEOUT_MS") != "" {
		if millis, err := strconv.Atoi(os.Getenv("IPFS_TIMEOUT_MS")); err == nil {
			ContentStoreTimeout = time.Millisecond * time.Duration(millis)
		}
	}

	LedgerRPCURL = os.Getenv("LEDGER_RPC_URL")
	if LedgerRPCURL == "" {
		LedgerRPCURL = "http://localhost:8545"
	}

	PubSubPullInterval = defaultPubSubPullInterval
	if os.Getenv("PUBSUB_PULL_INTERVAL_MS") != "" {
		if millis, err := strconv.Atoi(os.Getenv("PUBSUB_PULL_INTERVAL_MS")); err == nil {
			PubSubPullInterval = time.Millisecond * time.Duration(millis)
		}
	}
}
