// Package pool содержит пулы объектов для горячих путей приема показаний.
package pool

import (
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

// ObjectPools содержит пулы переиспользуемых объектов
type ObjectPools struct {
	readingPool sync.Pool
}

// Global пулы объектов
var Global = &ObjectPools{
	readingPool: sync.Pool{
		New: func() interface{} {
			return &models.Reading{}
		},
	},
}

// GetReading возвращает чистое показание из пула
func (p *ObjectPools) GetReading() *models.Reading {
	return p.readingPool.Get().(*models.Reading)
}

// PutReading возвращает показание в пул. Буфер показаний хранит копии,
// поэтому возврат безопасен сразу после приема.
func (p *ObjectPools) PutReading(r *models.Reading) {
	r.SensorID = ""
	r.DeviceID = ""
	r.Timestamp = time.Time{}
	r.RSSI = nil
	r.Position = nil
	r.Confidence = 0
	p.readingPool.Put(r)
}
