package schema

// DeliveryEvent reports one coalesced downstream write.
type DeliveryEvent struct {
	SessionID SessionID
	Bytes     int
	Segments  int
	// Forced is true when the batch was released by the safety valve
	// rather than a closing end marker.
	Forced bool
}

// QueryEvent reports one answered in-band query.
type QueryEvent struct {
	SessionID SessionID
	Kind      QueryKind
	// ResponseBytes is the length of the reply written upstream.
	ResponseBytes int
}

// SessionEventType marks session lifecycle transitions.
type SessionEventType string

const (
	// SessionOpened indicates a session was registered.
	SessionOpened SessionEventType = "opened"
	// SessionClosed indicates a session was torn down.
	SessionClosed SessionEventType = "closed"
)

// SessionEvent reports a session lifecycle transition.
type SessionEvent struct {
	SessionID SessionID
	Type      SessionEventType
}

// SessionStats are per-session counters exposed by Snapshot.
type SessionStats struct {
	BytesIn         int64
	BytesOut        int64
	QueriesAnswered int64
	FramesSegmented int64
	AcksStripped    int64
	ForcedFlushes   int64
	Deliveries      int64
}
