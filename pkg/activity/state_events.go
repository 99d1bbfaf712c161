package activity

import (
	"strings"
	"time"
)

// Verbs and object types emitted by the state store.
const (
	VerbStateUpdated      = "state.updated"
	VerbStateSubscribed   = "state.subscribed"
	VerbStateUnsubscribed = "state.unsubscribed"

	ObjectSnapshot     = "state.snapshot"
	ObjectSubscription = "state.subscription"
)

// StateEventInput carries the fields shared by state lifecycle events.
type StateEventInput struct {
	Actor              Actor
	Channel            string
	Metadata           map[string]any
	SnapshotID         string
	PreviousSnapshotID string
	Changed            []string
	Notified           int
	Deferred           bool
	SubscriptionID     string
	Selector           string
	Dependencies       []string
	OccurredAt         time.Time
}

// BuildStateUpdatedEvent describes a committed snapshot. The object is the new
// snapshot id.
func BuildStateUpdatedEvent(input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	metadata = ensureMetadata(metadata)
	metadata["changed"] = append([]string{}, input.Changed...)
	metadata["notified"] = input.Notified
	if input.PreviousSnapshotID != "" {
		metadata["previous_snapshot_id"] = input.PreviousSnapshotID
	}
	if input.Deferred {
		metadata["deferred"] = true
	}
	return buildStateEvent(VerbStateUpdated, ObjectSnapshot, input.SnapshotID, input, metadata)
}

// BuildStateSubscribedEvent describes an engine mounted on the store.
func BuildStateSubscribedEvent(input StateEventInput) Event {
	return buildSubscriptionEvent(VerbStateSubscribed, input)
}

// BuildStateUnsubscribedEvent describes an engine removed from the store.
func BuildStateUnsubscribedEvent(input StateEventInput) Event {
	return buildSubscriptionEvent(VerbStateUnsubscribed, input)
}

func buildSubscriptionEvent(verb string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Selector != "" {
		metadata = ensureMetadata(metadata)
		metadata["selector"] = input.Selector
	}
	if len(input.Dependencies) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["dependencies"] = append([]string{}, input.Dependencies...)
	}
	if input.SnapshotID != "" {
		metadata = ensureMetadata(metadata)
		metadata["snapshot_id"] = input.SnapshotID
	}
	return buildStateEvent(verb, ObjectSubscription, input.SubscriptionID, input, metadata)
}

func buildStateEvent(verb, objectType, objectID string, input StateEventInput, metadata map[string]any) Event {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		objectID = objectType
	}
	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.Actor.ActorID),
		UserID:     strings.TrimSpace(input.Actor.UserID),
		TenantID:   strings.TrimSpace(input.Actor.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
