package cache

import (
	"encoding/json"
	"time"
)

// GetJSON retrieves and unmarshals a cached value into dest. Returns
// (false, nil) on a clean miss.
func (c *Cache) GetJSON(key string, dest interface{}) (bool, error) {
	payload, ok, err := c.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals value and writes it through both tiers with the given TTL.
func (c *Cache) SetJSON(key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(key, payload, ttl)
}
