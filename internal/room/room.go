// Package room defines the narrow interfaces through which the agent observes
// a multi-party audio room and publishes data back to it. The transport behind
// these interfaces is an external collaborator; the agent never depends on it
// beyond what is declared here.
package room

import "context"

// TrackKind distinguishes media types. Only audio tracks are transcribed.
type TrackKind int

const (
	KindUnknown TrackKind = iota
	KindAudio
	KindVideo
)

// String returns the lowercase wire name for the kind.
func (k TrackKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseTrackKind maps a wire name to a TrackKind.
func ParseTrackKind(s string) TrackKind {
	switch s {
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	default:
		return KindUnknown
	}
}

// AudioFrame is one chunk of raw PCM audio from a track.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Track is one media source published by a participant. Frames returns a
// lazy, finite, non-restartable sequence: the channel is closed when the
// source ends or the track is torn down.
type Track interface {
	SID() string
	Kind() TrackKind
	Frames() <-chan AudioFrame
}

// Participant is a remote room member.
type Participant interface {
	SID() string
	Identity() string

	// AudioTracks returns the participant's currently published audio tracks.
	AudioTracks() []Track
}

// EventKind identifies a room lifecycle notification.
type EventKind int

const (
	EventParticipantConnected EventKind = iota + 1
	EventTrackSubscribed
	EventTrackUnsubscribed
	EventDataReceived
)

// Event is a typed room notification delivered over the room's event channel.
// Track is set only for track events; Topic and Payload only for data events.
type Event struct {
	Kind        EventKind
	Participant Participant
	Track       Track
	Topic       string
	Payload     []byte
}

// Room is the agent's handle on one connected room.
type Room interface {
	Name() string

	// RemoteParticipants snapshots the participants currently in the room.
	// Used for the startup scan.
	RemoteParticipants() []Participant

	// Events delivers lifecycle notifications. The channel is closed when
	// the room connection ends.
	Events() <-chan Event

	// PublishData broadcasts a payload to all participants.
	PublishData(ctx context.Context, payload []byte, reliable bool) error

	Close() error
}
