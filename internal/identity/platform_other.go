//go:build !darwin

package identity

// MacOSContactsLookup is a no-op stub on non-Darwin platforms so
// callers can reference it unconditionally; Contacts.app only exists
// on macOS.
func MacOSContactsLookup(handle string) (displayName string, ok bool) {
	return "", false
}
