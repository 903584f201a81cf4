package directory

import (
	"context"
	"sync"

	"driver-support-chat/pkg/models"
)

// MemoryDirectory is the in-process Directory used in tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]models.Driver
	byPhone map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]models.Driver),
		byPhone: make(map[string]string),
	}
}

func (d *MemoryDirectory) Validate(ctx context.Context, driverID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.byID[driverID]
	return ok, nil
}

func (d *MemoryDirectory) FindByPhone(ctx context.Context, phone string) (models.Driver, error) {
	digits := PhoneKeyDigits(phone)
	if digits == "" {
		return models.Driver{}, models.ErrNotFound
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	driverID, ok := d.byPhone[digits]
	if !ok {
		return models.Driver{}, models.ErrNotFound
	}
	return d.byID[driverID], nil
}

func (d *MemoryDirectory) Register(ctx context.Context, driver models.Driver) error {
	if driver.DriverID == "" {
		return models.ErrInvalidInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.byID[driver.DriverID] = driver
	if digits := PhoneKeyDigits(driver.Phone); digits != "" {
		d.byPhone[digits] = driver.DriverID
	}
	return nil
}
