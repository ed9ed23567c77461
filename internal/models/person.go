package models

import "fmt"

// Person связывает человека с отслеживаемыми устройствами. Позиция
// человека - это позиция его активного устройства.
type Person struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DefaultDeviceID string   `json:"default_device_id"` // активное устройство трекинга
	LinkedDeviceIDs []string `json:"linked_device_ids"`
	Color           string   `json:"color,omitempty"`
	Avatar          string   `json:"avatar,omitempty"`
}

// Validate проверяет корректность конфигурации человека
func (p *Person) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("person id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("person %s: name is required", p.ID)
	}
	if p.DefaultDeviceID == "" {
		return fmt.Errorf("person %s: default device id is required", p.ID)
	}
	return nil
}

// HasDevice сообщает, привязано ли устройство к человеку
func (p *Person) HasDevice(deviceID string) bool {
	for _, id := range p.LinkedDeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}
