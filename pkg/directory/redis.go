package directory

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"driver-support-chat/pkg/models"
)

func driverKey(driverID string) string { return "driver:" + driverID }
func phoneKey(digits string) string    { return "driver:phone:" + digits }

// RedisDirectory stores driver records as hashes with a phone-digits index.
type RedisDirectory struct {
	rdb *redis.Client
}

func NewRedisDirectory(rdb *redis.Client) *RedisDirectory {
	return &RedisDirectory{rdb: rdb}
}

func (d *RedisDirectory) Validate(ctx context.Context, driverID string) (bool, error) {
	if driverID == "" {
		return false, nil
	}
	exists, err := d.rdb.Exists(ctx, driverKey(driverID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to validate driver: %w", err)
	}
	return exists == 1, nil
}

func (d *RedisDirectory) FindByPhone(ctx context.Context, phone string) (models.Driver, error) {
	digits := PhoneKeyDigits(phone)
	if digits == "" {
		return models.Driver{}, models.ErrNotFound
	}

	driverID, err := d.rdb.Get(ctx, phoneKey(digits)).Result()
	if err != nil {
		if err == redis.Nil {
			return models.Driver{}, models.ErrNotFound
		}
		return models.Driver{}, fmt.Errorf("failed to look up phone: %w", err)
	}

	fields, err := d.rdb.HGetAll(ctx, driverKey(driverID)).Result()
	if err != nil {
		return models.Driver{}, fmt.Errorf("failed to fetch driver: %w", err)
	}
	if len(fields) == 0 {
		return models.Driver{}, models.ErrNotFound
	}

	return models.Driver{
		DriverID: fields["driver_id"],
		Name:     fields["name"],
		Phone:    fields["phone"],
		Plan:     fields["plan"],
	}, nil
}

func (d *RedisDirectory) Register(ctx context.Context, driver models.Driver) error {
	if driver.DriverID == "" {
		return models.ErrInvalidInput
	}

	pipe := d.rdb.Pipeline()
	pipe.HSet(ctx, driverKey(driver.DriverID),
		"driver_id", driver.DriverID,
		"name", driver.Name,
		"phone", driver.Phone,
		"plan", driver.Plan,
	)
	if digits := PhoneKeyDigits(driver.Phone); digits != "" {
		pipe.Set(ctx, phoneKey(digits), driver.DriverID, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register driver: %w", err)
	}
	return nil
}
