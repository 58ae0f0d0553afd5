package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/couchbc/rent/common"
	"github.com/couchbc/rent/ipfs"
	"github.com/couchbc/rent/keys"
	"github.com/couchbc/rent/ledger"
	"github.com/couchbc/rent/localstore"
	"github.com/couchbc/rent/pubsub"
	"github.com/couchbc/rent/rental"
)

const runloopSleepInterval = 250 * time.Millisecond
const shutdownTimeout = 5 * time.Second

var (
	cancelF     context.CancelFunc
	closing     = make(chan struct{})
	shutdownCtx context.Context
	sigs        chan os.Signal

	srv     *http.Server
	channel *pubsub.Channel
)

func main() {
	common.Log.Debugf("starting rent api...")
	installSignalHandlers()

	protocol, err := bootstrap()
	if err != nil {
		common.Log.Panicf("failed to bootstrap protocol context; %s", err.Error())
	}

	runAPI(protocol)

	timer := time.NewTicker(runloopSleepInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case sig := <-sigs:
			common.Log.Debugf("received signal: %s", sig)
			shutdown()
		case <-shutdownCtx.Done():
			close(closing)
			gracefulShutdown()
			return
		}
	}
}

func bootstrap() (*rental.Context, error) {
	store := resolveLocalStore()

	registry := keys.NewRegistry()
	manager := keys.NewManager(registry, store)

	transport, dedup, err := resolveChannelBackends()
	if err != nil {
		return nil, err
	}
	channel = pubsub.NewChannel(transport, manager, store, dedup, common.PubSubPullInterval)

	ledgerClient := resolveLedger()

	protocol := rental.NewContext(manager, channel, ledgerClient, ipfs.NewClient(), store)
	protocol.RegisterProcessors()

	if err := channel.RestoreSubscriptions(); err != nil {
		return nil, err
	}

	ledgerClient.On("RentalRequested", func(event *ledger.Event) {
		common.Log.Debugf("rental requested on ledger: %v", event.Values)
	})

	return protocol, nil
}

func resolveLocalStore() localstore.KV {
	if os.Getenv("LOCAL_STORE") == "memory" {
		common.Log.Warningf("using in-memory local store; state will not survive a restart")
		return localstore.NewInMemory()
	}
	return localstore.New()
}

func resolveChannelBackends() (pubsub.Transport, pubsub.DedupStore, error) {
	if os.Getenv("PUBSUB_TRANSPORT") == "memory" {
		common.Log.Warningf("using in-memory pub/sub transport; messages will not cross process boundaries")
		return pubsub.NewInMemoryTransport(), pubsub.NewInMemoryDedupStore(), nil
	}

	transport, err := pubsub.NewNatsTransport()
	if err != nil {
		return nil, nil, err
	}
	return transport, pubsub.NewRedisDedupStore(), nil
}

func resolveLedger() ledger.Client {
	if os.Getenv("LEDGER") == "memory" {
		common.Log.Warningf("using in-memory ledger; transactions will not survive a restart")
		return ledger.NewInMemoryLedger()
	}
	return ledger.NewRPCClient()
}

func installSignalHandlers() {
	common.Log.Debug("installing signal handlers")
	sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	shutdownCtx, cancelF = context.WithCancel(context.Background())
}

func shutdown() {
	if cancelF != nil {
		common.Log.Debug("shutting down")
		cancelF()
	}
}

func gracefulShutdown() {
	if channel != nil {
		channel.StopAll()
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			common.Log.Warningf("failed to shut down api server cleanly; %s", err.Error())
		}
	}

	common.Log.Debug("exiting rent api")
}

func runAPI(protocol *rental.Context) {
	listenAddr := fmt.Sprintf("0.0.0.0:%s", listenPort())

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", statusHandler)
	rental.InstallAPI(r, protocol)

	srv = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	go func() {
		common.Log.Infof("api server listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("api server failed; %s", err.Error())
		}
	}()
}

func listenPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func statusHandler(c *gin.Context) {
	provide.Render(nil, 204, c)
}
