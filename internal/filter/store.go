package filter

import (
	"sync"
	"time"
)

// Store арена пофильтровых состояний устройств: фильтр создается лениво
// при первом обращении, уничтожается после периода неактивности и
// никогда не разделяется между устройствами.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	devices map[string]*entry
}

type entry struct {
	kalman   *Kalman
	lastSeen time.Time
}

// NewStore создает хранилище фильтров
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		devices: make(map[string]*entry),
	}
}

// Get возвращает фильтр устройства, создавая его при первом обращении.
// lastActive - время последнего показания устройства; от него отсчитывается
// неактивность в Sweep, поэтому опрос фильтра сам по себе не продлевает
// жизнь устройству.
func (s *Store) Get(deviceID string, lastActive time.Time) *Kalman {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.devices[deviceID]
	if !ok {
		e = &entry{kalman: NewKalman(s.cfg)}
		s.devices[deviceID] = e
	}
	if lastActive.After(e.lastSeen) {
		e.lastSeen = lastActive
	}
	return e.kalman
}

// Drop уничтожает состояние устройства. Повторное появление устройства
// начнет с чистого фильтра без унаследованной ковариации.
func (s *Store) Drop(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
}

// Sweep удаляет фильтры устройств, неактивных дольше inactivity,
// и возвращает их идентификаторы.
func (s *Store) Sweep(now time.Time, inactivity time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for deviceID, e := range s.devices {
		if now.Sub(e.lastSeen) > inactivity {
			delete(s.devices, deviceID)
			dropped = append(dropped, deviceID)
		}
	}
	return dropped
}

// ActiveCount возвращает число устройств с живым фильтром
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}
