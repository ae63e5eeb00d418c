package database

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/config"
)

// NewClickHouse opens the native-protocol connection used by the analytics
// store. Compression is LZ4, the driver default for the native protocol.
func NewClickHouse(cfg *config.Config, log *logrus.Logger) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr()},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Name,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: 5 * time.Second,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.ClickHouse.Host,
		"database":  cfg.ClickHouse.Name,
	}).Info("connected to ClickHouse")
	return conn, nil
}
