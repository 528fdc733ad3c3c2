package main

import (
	"context"
	"crypto/ecdsa"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/privyballot/privyballot-sync/src/ballotapi/config"
	"github.com/privyballot/privyballot-sync/src/ballotapi/data"
	"github.com/privyballot/privyballot-sync/src/ballotapi/types"
	"github.com/privyballot/privyballot-sync/src/ballotapi/webserver"
	"github.com/privyballot/privyballot-sync/src/shared/codec"
	"github.com/privyballot/privyballot-sync/src/shared/dao"
	"github.com/privyballot/privyballot-sync/src/shared/fhe"
	"github.com/privyballot/privyballot-sync/src/shared/gate"
	"github.com/privyballot/privyballot-sync/src/shared/ipfs"
	"github.com/privyballot/privyballot-sync/src/shared/ledger"
	"github.com/privyballot/privyballot-sync/src/shared/overlay"
)

func main() {
	// Connect to database first
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "privyballot:privyballot@tcp(localhost:3306)/privyballot"
	}
	db := data.MustMySQL(mysqlDSN)

	if err := db.AutoMigrate(&types.Setting{}); err != nil {
		log.Fatalf("settings migrate: %v", err)
	}

	// Load settings from database
	if err := data.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings: %v", err)
	}

	cfg := config.Load(db)
	rdb := data.MustRedis(cfg.RedisURL)

	if err := overlay.Migrate(db); err != nil {
		log.Fatalf("overlay migrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lc := dialLedger(ctx, cfg)
	defer lc.Close()

	contents := buildContentStore(cfg, rdb)
	ov := overlay.NewStore(db)
	cd := codec.New(ov)
	g := gate.New()
	sync := dao.NewSynchronizer(lc, contents, ov, g, cd, cfg.ChainID)
	reveal := dao.NewCoordinator(lc, sync)

	// Background re-sync keeps the metadata cache warm
	go sync.Run(ctx, time.Duration(cfg.SyncInterval)*time.Second)

	props := webserver.NewProposals(lc, contents, ov, cd, sync, reveal, fhe.NewMock(), common.HexToAddress(cfg.ContractAddress))
	router := webserver.New(cfg, rdb, props)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	log.Printf("PrivyBallot API listening on %s (chain %d, contract %s)", cfg.Port, cfg.ChainID, cfg.ContractAddress)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}

// dialLedger connects the contract client. Without a private key the client
// is read-only and write endpoints will fail at transaction time.
func dialLedger(ctx context.Context, cfg config.Config) *ledger.EVMClient {
	key, err := loadKey(cfg.PrivateKey)
	if err != nil {
		log.Fatalf("ledger key: %v", err)
	}
	if key == nil {
		log.Printf("Warning: no PRIVATE_KEY configured, ledger client is read-only")
	}
	lc, err := ledger.DialEVM(ctx, cfg.RPCURL, common.HexToAddress(cfg.ContractAddress), key)
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}
	return lc
}

func loadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, nil
	}
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// buildContentStore picks Pinata when credentials are configured and falls
// back to the local mock otherwise, both behind the Redis read-through cache.
func buildContentStore(cfg config.Config, rdb *redis.Client) ipfs.Store {
	var inner ipfs.Store
	switch {
	case cfg.PinataAPIKey != "" && cfg.PinataSecret != "":
		inner = ipfs.NewPinata(cfg.PinataAPIKey, cfg.PinataSecret, cfg.Gateways)
	case cfg.MetadataFile != "":
		m, err := ipfs.NewMockFile(cfg.MetadataFile)
		if err != nil {
			log.Fatalf("metadata store: %v", err)
		}
		log.Printf("Warning: using file-backed metadata store at %s", cfg.MetadataFile)
		inner = m
	default:
		log.Printf("Warning: no Pinata credentials, using in-memory metadata store")
		inner = ipfs.NewMock()
	}
	return ipfs.NewCached(inner, rdb, 24*time.Hour)
}
