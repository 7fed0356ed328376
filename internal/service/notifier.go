package service

// Notifier fans events out to connected sockets. Emit is fire-and-forget:
// an empty room or a slow socket never fails the caller.
type Notifier interface {
	Emit(room, event string, data any)
	// JoinUsers enrols every connected socket of the given users into room.
	JoinUsers(room string, userIDs ...int64)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Emit(string, string, any)   {}
func (NopNotifier) JoinUsers(string, ...int64) {}
