//go:build darwin

package liveauth

// NewDefaultCredentialSlot returns the keychain entry; the file path is unused on macOS.
func NewDefaultCredentialSlot(_ string) CredentialSlot {
	return NewKeyringSlot(ToolKeychainService)
}
