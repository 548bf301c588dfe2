// Package events distributes observations of a running scenario (agent steps,
// logged messages, offers, task assignments, resource changes, votes) to any
// number of hooks, locally or over NATS.
//
// Design decisions:
//   - Context-first: All operations accept context.Context for cancellation/timeout
//   - Topic-based: Events are distributed through named topics for logical separation
//   - Self-contained payloads: Events carry plain values, never domain types, so
//     every package can emit them without import cycles
//   - Type markers: JSON encoding adds a "type" field so remote subscribers can
//     rebuild the concrete event
//   - Slow subscribers: a subscriber that cannot keep up is dropped instead of
//     stalling the publisher
//
// Interface hierarchy:
//   - Stream: Top-level interface for accessing topics
//     └── Topic: Interface for publishing/subscribing to events
//     └── Subscription: Interface for managing subscriptions
//
// Example usage:
//
//	stream := events.Local()
//	topic := stream.Topic(ctx, "negotiation")
//	sub, err := topic.Subscribe(ctx, hook)
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	_ = topic.Publish(ctx, events.OfferMade{Bidder: "vendor", Price: 140, Quantity: 50})
package events
