package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/privyballot/privyballot-sync/src/ballotapi/data"
)

type Config struct {
	MySQLDSN        string
	RedisURL        string
	JWTSecret       string
	RPCURL          string
	ContractAddress string
	ChainID         uint64
	PrivateKey      string
	Port            string
	SyncInterval    int
	PinataAPIKey    string
	PinataSecret    string
	Gateways        []string
	MetadataFile    string
}

// value resolves one key: environment first, then the settings table, then
// the default.
func value(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := data.GetSetting(key); v != "" {
		return v
	}
	return def
}

func required(key string) string {
	v := value(key, "")
	if v == "" {
		log.Fatalf("missing config %s", key)
	}
	return v
}

// Load builds the runtime config. Call after data.LoadSettings so the table
// values are visible.
func Load(db *gorm.DB) Config {
	_ = db
	interval, _ := strconv.Atoi(value("SYNC_INTERVAL", "60"))
	chainID, _ := strconv.ParseUint(value("CHAIN_ID", "31337"), 10, 64)
	return Config{
		MySQLDSN:        value("MYSQL_DSN", "privyballot:privyballot@tcp(localhost:3306)/privyballot"),
		RedisURL:        value("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:       required("JWT_SECRET"),
		RPCURL:          value("RPC_URL", "http://localhost:8545"),
		ContractAddress: required("CONTRACT_ADDRESS"),
		ChainID:         chainID,
		PrivateKey:      value("PRIVATE_KEY", ""),
		Port:            value("PORT", "8080"),
		SyncInterval:    interval,
		PinataAPIKey:    value("PINATA_API_KEY", ""),
		PinataSecret:    value("PINATA_SECRET_KEY", ""),
		Gateways:        gatewayList(value("IPFS_GATEWAYS", "")),
		MetadataFile:    value("METADATA_FILE", ""),
	}
}

// gatewayList splits a comma-separated gateway override. Empty means the
// built-in fallback chain.
func gatewayList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
