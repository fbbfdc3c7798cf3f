package domain

import "time"

// ProductionMetadata 目录产品上的生产元数据子文档（productionData）。
//
// 每次成功绑定都整体覆盖，后写者胜；撤销绑定时不回滚。
type ProductionMetadata struct {
	LastSliced           time.Time   `json:"lastSliced"`
	Grams                float64     `json:"grams"`
	PrintTimeMinutes     float64     `json:"printTimeMinutes"`
	MachineType          MachineType `json:"machineType"`
	FilamentType         string      `json:"filamentType,omitempty"`
	FileName             string      `json:"fileName"`
	QualityProfile       string      `json:"qualityProfile,omitempty"`
	PrinterModel         string      `json:"printerModel,omitempty"`
	NozzleDiameter       string      `json:"nozzleDiameter,omitempty"`
	TotalLayers          *int        `json:"totalLayers,omitempty"`
	FilamentLengthMeters *float64    `json:"filamentLengthMeters,omitempty"`
	MulticolorChanges    int         `json:"multicolorChanges"`
}
