package domain

import "time"

// InboxStatus 切片收件箱条目的生命周期状态
type InboxStatus string

const (
	InboxStatusPending InboxStatus = "pending" // 待处理，等待操作员绑定或忽略
	InboxStatusLinked  InboxStatus = "linked"  // 已绑定到目录产品
	InboxStatusIgnored InboxStatus = "ignored" // 已忽略（逻辑删除，终态）
)

// Valid 判断状态值是否合法
func (s InboxStatus) Valid() bool {
	switch s {
	case InboxStatusPending, InboxStatusLinked, InboxStatusIgnored:
		return true
	}
	return false
}

// MachineType 打印机类型
type MachineType string

const (
	MachineTypeFDM   MachineType = "FDM"
	MachineTypeResin MachineType = "RESIN"
)

// InboxSource 事件来源
type InboxSource string

const (
	SourceSlicerHook InboxSource = "slicer-hook" // 切片软件脚本自动上报
	SourceManual     InboxSource = "manual"      // 手动录入
)

// 绑定操作者标识
const (
	LinkedByAutomated = "automated"
	LinkedByOperator  = "operator"
)

// InboxItem 表示一次切片事件在收件箱中的记录。
//
// LinkedProductID 仅在 Status == linked 时存在；PreviousStatus 记录撤销绑定时要恢复的状态，
// 同样只在 linked 状态下存在。所有可选字段使用指针表示"缺省"，不依赖存储引擎的删除标记。
type InboxItem struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Fingerprint string      `json:"fingerprint" gorm:"type:varchar(512);index:idx_inbox_fingerprint_status,priority:1;not null"`
	Name        string      `json:"name" gorm:"type:varchar(255)"`
	FileName    string      `json:"fileName" gorm:"type:varchar(255);not null"`
	Source      InboxSource `json:"source" gorm:"type:varchar(32)"`
	// ScriptVersion 上报脚本版本
	ScriptVersion string `json:"scriptVersion,omitempty" gorm:"type:varchar(64)"`

	Grams                float64     `json:"grams"`
	Time                 float64     `json:"time"` // 分钟
	MachineType          MachineType `json:"machineType" gorm:"type:varchar(16)"`
	FilamentType         string      `json:"filamentType,omitempty" gorm:"type:varchar(64)"`
	QualityProfile       string      `json:"qualityProfile,omitempty" gorm:"type:varchar(128)"`
	PrinterModel         string      `json:"printerModel,omitempty" gorm:"type:varchar(128)"`
	NozzleDiameter       string      `json:"nozzleDiameter,omitempty" gorm:"type:varchar(32)"`
	TotalLayers          *int        `json:"totalLayers,omitempty"`
	FilamentLengthMeters *float64    `json:"filamentLengthMeters,omitempty"`
	MulticolorChanges    *int        `json:"multicolorChanges,omitempty"`

	FileSize      *int64 `json:"fileSize,omitempty"`
	FileTimestamp *int64 `json:"fileTimestamp,omitempty"`

	Status          InboxStatus  `json:"status" gorm:"type:varchar(16);index:idx_inbox_fingerprint_status,priority:2;index:idx_inbox_status_created,priority:1;index:idx_inbox_status_linked,priority:1;not null"`
	CreatedAt       time.Time    `json:"createdAt" gorm:"index:idx_inbox_status_created,priority:2"`
	LinkedProductID *string      `json:"linkedProductId,omitempty" gorm:"type:varchar(128)"`
	LinkedAt        *time.Time   `json:"linkedAt,omitempty" gorm:"index:idx_inbox_status_linked,priority:2"`
	LinkedBy        *string      `json:"linkedBy,omitempty" gorm:"type:varchar(64)"`
	PreviousStatus  *InboxStatus `json:"previousStatus,omitempty" gorm:"type:varchar(16)"`

	// DedupKey 去重占位：仅当前持有去重窗口的待处理条目等于 Fingerprint，其余为 NULL。
	// 唯一索引保证同一指纹至多一个占位者。
	DedupKey *string `json:"-" gorm:"type:varchar(512);uniqueIndex:uq_inbox_dedup_key"`
}

// TableName 指定表名
func (InboxItem) TableName() string {
	return "slicing_inbox"
}

// IsLinked 是否处于已绑定状态
func (i *InboxItem) IsLinked() bool {
	return i.Status == InboxStatusLinked
}

// ProductionMetadata 生成要写入目录产品的生产元数据子文档。
func (i *InboxItem) ProductionMetadata(now time.Time) ProductionMetadata {
	changes := 0
	if i.MulticolorChanges != nil {
		changes = *i.MulticolorChanges
	}
	return ProductionMetadata{
		LastSliced:           now.UTC(),
		Grams:                i.Grams,
		PrintTimeMinutes:     i.Time,
		MachineType:          i.MachineType,
		FilamentType:         i.FilamentType,
		FileName:             i.FileName,
		QualityProfile:       i.QualityProfile,
		PrinterModel:         i.PrinterModel,
		NozzleDiameter:       i.NozzleDiameter,
		TotalLayers:          i.TotalLayers,
		FilamentLengthMeters: i.FilamentLengthMeters,
		MulticolorChanges:    changes,
	}
}

// markLinked 将条目置为已绑定
func (i *InboxItem) markLinked(productID, linkedBy string, now time.Time) {
	previous := InboxStatusPending
	at := now.UTC()
	i.Status = InboxStatusLinked
	i.LinkedProductID = &productID
	i.LinkedAt = &at
	i.LinkedBy = &linkedBy
	i.PreviousStatus = &previous
	i.DedupKey = nil
}

// Link 执行 pending -> linked 状态迁移
func (i *InboxItem) Link(productID, linkedBy string, now time.Time) error {
	if i.Status != InboxStatusPending {
		return transitionError(i.Status, InboxStatusLinked)
	}
	i.markLinked(productID, linkedBy, now)
	return nil
}

// Unlink 执行 linked -> previousStatus 状态迁移（撤销绑定）
func (i *InboxItem) Unlink() error {
	if i.Status != InboxStatusLinked {
		return transitionError(i.Status, InboxStatusPending)
	}
	restore := InboxStatusPending
	if i.PreviousStatus != nil {
		restore = *i.PreviousStatus
	}
	i.Status = restore
	i.LinkedProductID = nil
	i.LinkedAt = nil
	i.LinkedBy = nil
	i.PreviousStatus = nil
	return nil
}

// Ignore 执行 pending -> ignored 状态迁移
func (i *InboxItem) Ignore() error {
	if i.Status != InboxStatusPending {
		return transitionError(i.Status, InboxStatusIgnored)
	}
	i.Status = InboxStatusIgnored
	i.DedupKey = nil
	return nil
}

// CreateInboxItemInput 切片事件的创建参数（不含生命周期字段）
type CreateInboxItemInput struct {
	Name                 string      `json:"name"`
	FileName             string      `json:"fileName"`
	Source               InboxSource `json:"source"`
	ScriptVersion        string      `json:"scriptVersion"`
	Grams                *float64    `json:"grams"`
	Time                 *float64    `json:"time"`
	MachineType          MachineType `json:"machineType"`
	FilamentType         string      `json:"filamentType"`
	QualityProfile       string      `json:"qualityProfile"`
	PrinterModel         string      `json:"printerModel"`
	NozzleDiameter       string      `json:"nozzleDiameter"`
	TotalLayers          *int        `json:"totalLayers"`
	FilamentLengthMeters *float64    `json:"filamentLengthMeters"`
	MulticolorChanges    *int        `json:"multicolorChanges"`
	FileSize             *int64      `json:"fileSize"`
	FileTimestamp        *int64      `json:"fileTimestamp"`
	// LinkedProductID 可信的自动化上报可直接指定目标产品
	LinkedProductID string `json:"linkedProductId"`
}
