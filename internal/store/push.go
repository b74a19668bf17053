package store

import (
	"database/sql"
	"fmt"
)

// PushSubscription is one Web Push registration.
type PushSubscription struct {
	Endpoint  string
	P256DH    string
	Auth      string
	UserAgent string
}

// NativeDevice is one native push registration.
type NativeDevice struct {
	DeviceToken string
	Platform    string
	UserAgent   string
}

// SavePushSubscription upserts a Web Push subscription keyed by endpoint.
func (s *Store) SavePushSubscription(sub PushSubscription, createdAt string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO push_subscriptions (endpoint, p256dh_key, auth_key, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sub.Endpoint, sub.P256DH, sub.Auth, sub.UserAgent, createdAt)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// PushSubscriptions lists all Web Push registrations.
func (s *Store) PushSubscriptions() ([]PushSubscription, error) {
	rows, err := s.db.Query(`SELECT endpoint, p256dh_key, auth_key, user_agent FROM push_subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		var p256dh, auth, agent sql.NullString
		if err := rows.Scan(&sub.Endpoint, &p256dh, &auth, &agent); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.P256DH = p256dh.String
		sub.Auth = auth.String
		sub.UserAgent = agent.String
		out = append(out, sub)
	}
	return out, rows.Err()
}

// DeletePushSubscription removes a Web Push registration by endpoint.
func (s *Store) DeletePushSubscription(endpoint string) error {
	if _, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// SaveNativeDevice upserts a native push device keyed by token.
func (s *Store) SaveNativeDevice(dev NativeDevice, createdAt string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO native_devices (device_token, platform, user_agent, created_at)
		VALUES (?, ?, ?, ?)`,
		dev.DeviceToken, dev.Platform, dev.UserAgent, createdAt)
	if err != nil {
		return fmt.Errorf("save native device: %w", err)
	}
	return nil
}

// NativeDevices lists all native push registrations.
func (s *Store) NativeDevices() ([]NativeDevice, error) {
	rows, err := s.db.Query(`SELECT device_token, platform, user_agent FROM native_devices`)
	if err != nil {
		return nil, fmt.Errorf("query native devices: %w", err)
	}
	defer rows.Close()

	var out []NativeDevice
	for rows.Next() {
		var dev NativeDevice
		var agent sql.NullString
		if err := rows.Scan(&dev.DeviceToken, &dev.Platform, &agent); err != nil {
			return nil, fmt.Errorf("scan native device: %w", err)
		}
		dev.UserAgent = agent.String
		out = append(out, dev)
	}
	return out, rows.Err()
}

// DeleteNativeDevice removes a native push registration by token.
func (s *Store) DeleteNativeDevice(token string) error {
	if _, err := s.db.Exec(`DELETE FROM native_devices WHERE device_token = ?`, token); err != nil {
		return fmt.Errorf("delete native device: %w", err)
	}
	return nil
}
