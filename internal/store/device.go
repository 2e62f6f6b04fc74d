package store

import (
	"errors"
	"strings"
	"time"
)

// DeviceConfig is the persisted device onboarding record.
type DeviceConfig struct {
	MQTTServer   string `json:"mqttServer"`
	MQTTPort     int    `json:"mqttPort"`
	MQTTUser     string `json:"mqttUser"`
	MQTTPassword string `json:"mqttPassword"`
	WiFiSSID     string `json:"wifiSSID,omitempty"`
	WiFiPassword string `json:"wifiPassword,omitempty"`
	DeviceAdded  bool   `json:"deviceAdded"`

	// LastPump caches the last known pump state for display across restarts.
	LastPump *PumpCache `json:"lastPump,omitempty"`
}

// PumpCache is the last pump state seen by the client.
type PumpCache struct {
	On        bool      `json:"on"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrNoServer is returned when a device is marked added without a broker host.
var ErrNoServer = errors.New("device config: mqttServer required when deviceAdded is set")

// Validate checks the record invariants.
func (c DeviceConfig) Validate() error {
	if c.DeviceAdded && strings.TrimSpace(c.MQTTServer) == "" {
		return ErrNoServer
	}
	return nil
}

// MaskedPassword returns the broker password as asterisks of the same length.
func (c DeviceConfig) MaskedPassword() string {
	return strings.Repeat("*", len(c.MQTTPassword))
}

// LoadDeviceConfig reads the config slot. The bool is false when no
// device has been onboarded yet.
func LoadDeviceConfig(s Store) (DeviceConfig, bool, error) {
	var c DeviceConfig
	ok, err := s.Get(KeyConfig, &c)
	if err != nil || !ok {
		return DeviceConfig{}, false, err
	}
	return c, true, nil
}

// SaveDeviceConfig validates and writes the config slot.
func SaveDeviceConfig(s Store, c DeviceConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.Set(KeyConfig, c)
}

// DeleteDevice removes both slots, forgetting the device and its schedule cache.
func DeleteDevice(s Store) error {
	if err := s.Delete(KeyConfig); err != nil {
		return err
	}
	return s.Delete(KeySchedules)
}
