package tracker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// PersonRegistry владеет привязками людей к устройствам. Активное
// устройство всегда присутствует в списке привязанных.
type PersonRegistry struct {
	mu      sync.RWMutex
	persons map[string]*models.Person
	logger  *utils.Logger
}

// NewPersonRegistry создает реестр людей
func NewPersonRegistry(logger *utils.Logger) *PersonRegistry {
	return &PersonRegistry{
		persons: make(map[string]*models.Person),
		logger:  logger,
	}
}

// Upsert добавляет или обновляет человека. Активное устройство
// добавляется в привязанные, если его там нет.
func (r *PersonRegistry) Upsert(person *models.Person) error {
	if err := person.Validate(); err != nil {
		return fmt.Errorf("person validation failed: %w", err)
	}
	if !person.HasDevice(person.DefaultDeviceID) {
		person.LinkedDeviceIDs = append(person.LinkedDeviceIDs, person.DefaultDeviceID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.persons[person.ID] = person

	r.logger.WithFields(map[string]interface{}{
		"person_id":      person.ID,
		"default_device": person.DefaultDeviceID,
		"linked_devices": len(person.LinkedDeviceIDs),
	}).Info("Person configured")

	return nil
}

// Delete удаляет человека из реестра
func (r *PersonRegistry) Delete(personID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.persons[personID]; !ok {
		return false
	}
	delete(r.persons, personID)
	r.logger.WithField("person_id", personID).Info("Person removed")
	return true
}

// Get возвращает копию человека по идентификатору
func (r *PersonRegistry) Get(personID string) (*models.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.persons[personID]
	if !ok {
		return nil, false
	}
	return copyPerson(p), true
}

// List возвращает копии всех людей в стабильном порядке
func (r *PersonRegistry) List() []*models.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Person, 0, len(r.persons))
	for _, p := range r.persons {
		out = append(out, copyPerson(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LinkDevice привязывает устройство к человеку
func (r *PersonRegistry) LinkDevice(personID, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.persons[personID]
	if !ok {
		return fmt.Errorf("person %s not found", personID)
	}
	if !p.HasDevice(deviceID) {
		p.LinkedDeviceIDs = append(p.LinkedDeviceIDs, deviceID)
		r.logger.WithFields(map[string]interface{}{
			"person_id": personID,
			"device_id": deviceID,
		}).Info("Device linked to person")
	}
	return nil
}

// UnlinkDevice отвязывает устройство. Активное устройство отвязать
// нельзя: сначала нужно выбрать другое активное.
func (r *PersonRegistry) UnlinkDevice(personID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.persons[personID]
	if !ok {
		return fmt.Errorf("person %s not found", personID)
	}
	if deviceID == p.DefaultDeviceID {
		return fmt.Errorf("cannot unlink default device %s, set a different default first", deviceID)
	}
	for i, id := range p.LinkedDeviceIDs {
		if id == deviceID {
			p.LinkedDeviceIDs = append(p.LinkedDeviceIDs[:i], p.LinkedDeviceIDs[i+1:]...)
			r.logger.WithFields(map[string]interface{}{
				"person_id": personID,
				"device_id": deviceID,
			}).Info("Device unlinked from person")
			return nil
		}
	}
	return nil
}

// SetActiveDevice меняет активное устройство трекинга. Устройство
// должно быть привязано к человеку.
func (r *PersonRegistry) SetActiveDevice(personID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.persons[personID]
	if !ok {
		return fmt.Errorf("person %s not found", personID)
	}
	if !p.HasDevice(deviceID) {
		return fmt.Errorf("device %s is not linked to person %s", deviceID, personID)
	}
	p.DefaultDeviceID = deviceID

	r.logger.WithFields(map[string]interface{}{
		"person_id": personID,
		"device_id": deviceID,
	}).Info("Active device changed")
	return nil
}

func copyPerson(p *models.Person) *models.Person {
	cp := *p
	cp.LinkedDeviceIDs = append([]string(nil), p.LinkedDeviceIDs...)
	return &cp
}
