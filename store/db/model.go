package db

import (
	"time"

	"github.com/kirsrus/telerelay/model"
)

type (
	// Visit запись проверки связи с базой данных
	Visit struct {
		ID         int       `gorm:"primaryKey"`
		DataVisita time.Time `gorm:"column:data_visita;not null"`
	}
)

// TableName имя таблицы
func (Visit) TableName() string {
	return "visitas"
}

// ToVisit маппинг данных в структуру model.Visit
func (m Visit) ToVisit() model.Visit {
	return model.Visit{
		ID:        m.ID,
		CreatedAt: m.DataVisita,
	}
}
