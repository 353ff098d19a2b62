package device

import (
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Registry validates device credentials. A device is accepted if its serial
// number was registered with a matching secret, or if the shared secret is
// set and matches.
type Registry struct {
	mu           sync.RWMutex
	secrets      map[string]string // serial_number -> secret_key
	sharedSecret string
}

// NewRegistry creates a registry, sharedSecret may be empty
func NewRegistry(sharedSecret string) *Registry {
	return &Registry{
		secrets:      make(map[string]string),
		sharedSecret: sharedSecret,
	}
}

// RegisterDeviceSecret registers a secret for a device's serial number
func (r *Registry) RegisterDeviceSecret(serialNumber, secret string) error {
	if serialNumber == "" {
		return errors.New("serial number cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[serialNumber] = secret
	return nil
}

// RemoveDeviceSecret removes the secret for a device's serial number
func (r *Registry) RemoveDeviceSecret(serialNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.secrets, serialNumber)
}

// ValidateDevice checks credentials and returns the device id
func (r *Registry) ValidateDevice(serialNumber, secret string) (string, error) {
	if serialNumber == "" || secret == "" {
		return "", ErrInvalidCredentials
	}

	r.mu.RLock()
	stored, exists := r.secrets[serialNumber]
	shared := r.sharedSecret
	r.mu.RUnlock()

	if exists {
		if !equal(stored, secret) {
			return "", ErrInvalidCredentials
		}
		return serialNumber, nil
	}
	if shared != "" && equal(shared, secret) {
		return serialNumber, nil
	}
	if shared != "" {
		return "", ErrInvalidCredentials
	}
	return "", ErrDeviceNotFound
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
