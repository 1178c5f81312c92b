package notification

import "context"

// LocalNotifier delivers straight to an in-process Hub. Used when no Redis
// is configured, and in tests.
type LocalNotifier struct {
	hub *Hub
}

func NewLocalNotifier(hub *Hub) *LocalNotifier {
	return &LocalNotifier{hub: hub}
}

func (n *LocalNotifier) Notify(_ context.Context, receiverID string, ev Event) error {
	n.hub.Deliver(receiverID, ev)
	return nil
}
