// Package onboarding adds and removes the device. A broker configuration is
// only saved as onboarded after a connection with it has succeeded.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sweeney/beegreen/internal/logger"
	"github.com/sweeney/beegreen/internal/mqtt"
	"github.com/sweeney/beegreen/internal/store"
)

// ErrIncomplete is returned when a required broker field is missing.
var ErrIncomplete = errors.New("onboarding: server, port, username and password are required")

// Connector is the part of an MQTT session used for the handshake.
type Connector interface {
	Connect(ctx context.Context, creds mqtt.Credentials) error
	Disconnect()
}

// Flow runs onboarding against a store.
type Flow struct {
	conn      Connector
	store     store.Store
	transport string
	log       *logger.Logger
}

// New returns a Flow. transport selects the broker scheme for the handshake.
func New(conn Connector, st store.Store, transport string, log *logger.Logger) *Flow {
	return &Flow{conn: conn, store: st, transport: transport, log: log.Named("onboarding")}
}

func complete(c store.DeviceConfig) bool {
	return strings.TrimSpace(c.MQTTServer) != "" &&
		c.MQTTPort > 0 &&
		c.MQTTUser != "" &&
		c.MQTTPassword != ""
}

// Onboard connects with the broker fields of cfg and, if that works, saves
// cfg with DeviceAdded set. WiFi fields left empty are taken from a
// previously provisioned record. Nothing is saved when the handshake fails.
func (f *Flow) Onboard(ctx context.Context, cfg store.DeviceConfig) (store.DeviceConfig, error) {
	if !complete(cfg) {
		return store.DeviceConfig{}, ErrIncomplete
	}

	creds := mqtt.Credentials{
		Server:    strings.TrimSpace(cfg.MQTTServer),
		Port:      cfg.MQTTPort,
		Username:  cfg.MQTTUser,
		Password:  cfg.MQTTPassword,
		Transport: f.transport,
	}
	f.log.Infow("testing broker connection", "server", creds.Server, "port", creds.Port, "user", creds.Username)
	if err := f.conn.Connect(ctx, creds); err != nil {
		return store.DeviceConfig{}, fmt.Errorf("broker handshake: %w", err)
	}
	f.conn.Disconnect()

	prev, ok, err := f.previous()
	if err != nil {
		return store.DeviceConfig{}, err
	}
	if ok {
		if cfg.WiFiSSID == "" {
			cfg.WiFiSSID, cfg.WiFiPassword = prev.WiFiSSID, prev.WiFiPassword
		}
		if cfg.LastPump == nil {
			cfg.LastPump = prev.LastPump
		}
	}
	cfg.MQTTServer = creds.Server
	cfg.DeviceAdded = true
	if err := store.SaveDeviceConfig(f.store, cfg); err != nil {
		return store.DeviceConfig{}, fmt.Errorf("save device config: %w", err)
	}
	f.log.Infow("device onboarded", "server", cfg.MQTTServer)
	return cfg, nil
}

// Provision records the details captured from the device's setup form. The
// record is not marked onboarded; Onboard does that after a handshake.
func (f *Flow) Provision(cfg store.DeviceConfig) error {
	prev, ok, err := f.previous()
	if err != nil {
		return err
	}
	if ok && prev.DeviceAdded {
		return errors.New("onboarding: a device is already onboarded; forget it first")
	}
	cfg.DeviceAdded = false
	return store.SaveDeviceConfig(f.store, cfg)
}

// previous loads the stored record. A corrupt record counts as absent so
// that saving a fresh one repairs the slot.
func (f *Flow) previous() (store.DeviceConfig, bool, error) {
	prev, ok, err := store.LoadDeviceConfig(f.store)
	if errors.Is(err, store.ErrCorrupt) {
		f.log.Warnw("replacing unreadable device config", "err", err)
		return store.DeviceConfig{}, false, nil
	}
	return prev, ok, err
}

// Current returns the stored record, if any.
func (f *Flow) Current() (store.DeviceConfig, bool, error) {
	return store.LoadDeviceConfig(f.store)
}

// Forget deletes the device record and its schedule cache.
func (f *Flow) Forget() error {
	if err := store.DeleteDevice(f.store); err != nil {
		return fmt.Errorf("forget device: %w", err)
	}
	f.log.Infow("device forgotten")
	return nil
}

// ParseProvisioningForm reads the URL-encoded body the device's setup page
// submits: s and p for WiFi, then mqtt_server, mqtt_port, username and
// password.
func ParseProvisioningForm(body string) (store.DeviceConfig, error) {
	v, err := url.ParseQuery(strings.TrimSpace(body))
	if err != nil {
		return store.DeviceConfig{}, fmt.Errorf("parse form: %w", err)
	}
	cfg := store.DeviceConfig{
		WiFiSSID:     v.Get("s"),
		WiFiPassword: v.Get("p"),
		MQTTServer:   strings.TrimSpace(v.Get("mqtt_server")),
		MQTTUser:     v.Get("username"),
		MQTTPassword: v.Get("password"),
	}
	if port := strings.TrimSpace(v.Get("mqtt_port")); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return store.DeviceConfig{}, fmt.Errorf("mqtt_port: invalid port %q", port)
		}
		cfg.MQTTPort = n
	}
	return cfg, nil
}

// EncodeProvisioningForm is the inverse of ParseProvisioningForm.
func EncodeProvisioningForm(cfg store.DeviceConfig) string {
	v := url.Values{}
	v.Set("s", cfg.WiFiSSID)
	v.Set("p", cfg.WiFiPassword)
	v.Set("mqtt_server", cfg.MQTTServer)
	if cfg.MQTTPort > 0 {
		v.Set("mqtt_port", strconv.Itoa(cfg.MQTTPort))
	}
	v.Set("username", cfg.MQTTUser)
	v.Set("password", cfg.MQTTPassword)
	return v.Encode()
}
