package core

// Notifier is an interface to receive resource lifecycle notifications
type Notifier interface {
	Notify(resource string, operation Operation, payload []byte)
}
