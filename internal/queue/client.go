package queue

import "context"

// Client hands a processing attempt to the worker fleet. Delivery is at
// least once; receivers must tolerate duplicates and stale attempts.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
