//go:build !darwin

package liveauth

func NewDefaultCredentialSlot(path string) CredentialSlot {
	return NewFileSlot(path)
}
