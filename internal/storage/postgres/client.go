package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
)

// Client 封装目录库的 PostgreSQL 连接池。
//
// 目录产品与收件箱不在同一个库时，由它承担生产元数据同步：
// 只执行 UPDATE products SET production_data，不触碰产品的其他列。
type Client struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New 创建新的 PostgreSQL 客户端
func New(ctx context.Context, dsn string, cfg config.DatabaseConfig, log *zap.Logger) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("catalog DSN is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	log.Info("connected to catalog database",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns),
	)

	return &Client{pool: pool, log: log}, nil
}

// WriteProductionMetadata 整体替换产品的 production_data
func (c *Client) WriteProductionMetadata(ctx context.Context, productID string, metadata domain.ProductionMetadata) error {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal production metadata: %w", err)
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE products SET production_data = $1 WHERE id = $2`,
		string(payload), productID,
	)
	if err != nil {
		return domain.Unavailable("write production metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

// Ping 测试数据库连接
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close 关闭连接池
func (c *Client) Close() {
	c.pool.Close()
	c.log.Info("catalog database connection closed")
}
