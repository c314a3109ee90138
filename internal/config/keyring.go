package config

import "github.com/zalando/go-keyring"

// KeyringService is the keyring service name secrets are stored under
const KeyringService = "olistpipe"

var keyringGet = keyring.Get

// StoreSecret saves a secret value in the OS keyring under key
func StoreSecret(key, value string) error {
	return keyring.Set(KeyringService, key, value)
}

// DeleteSecret removes a secret from the OS keyring
func DeleteSecret(key string) error {
	err := keyring.Delete(KeyringService, key)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}
