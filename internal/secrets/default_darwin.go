//go:build darwin

package secrets

// NewDefaultStore uses the login keychain on macOS.
func NewDefaultStore(_ string) (Store, error) {
	return NewKeyringStore(ServiceName), nil
}
