package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"slicinginbox/backend/internal/domain"
)

// Product 目录产品表中本子系统关心的列。
// 其余列由目录服务维护，这里只读写 production_data。
type Product struct {
	ID             string         `gorm:"primaryKey;type:varchar(128)"`
	ProductionData datatypes.JSON `gorm:"column:production_data"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// WriteProductionMetadata 整体替换产品的 production_data
func (s *Store) WriteProductionMetadata(ctx context.Context, productID string, metadata domain.ProductionMetadata) error {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal production metadata: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&Product{}).
		Where("id = ?", productID).
		Update("production_data", datatypes.JSON(payload))
	if result.Error != nil {
		return domain.Unavailable("write production metadata", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL 在值未变化时也报告 0 行
	var count int64
	if err := s.db.WithContext(ctx).Model(&Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return domain.Unavailable("write production metadata", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

// GetProductionMetadata 读取产品当前的生产元数据；从未写入时返回 nil
func (s *Store) GetProductionMetadata(ctx context.Context, productID string) (*domain.ProductionMetadata, error) {
	var product Product
	err := s.db.WithContext(ctx).Where("id = ?", productID).Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return nil, domain.Unavailable("get production metadata", err)
	}
	if len(product.ProductionData) == 0 || string(product.ProductionData) == "null" {
		return nil, nil
	}

	var meta domain.ProductionMetadata
	if err := json.Unmarshal(product.ProductionData, &meta); err != nil {
		return nil, fmt.Errorf("decode production metadata: %w", err)
	}
	return &meta, nil
}

// SaveProduct 登记目录产品（开发环境种子数据）
func (s *Store) SaveProduct(ctx context.Context, productID string) error {
	product := Product{ID: productID}
	if err := s.db.WithContext(ctx).Where(Product{ID: productID}).FirstOrCreate(&product).Error; err != nil {
		return domain.Unavailable("save product", err)
	}
	return nil
}
