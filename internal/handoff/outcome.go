// ABOUTME: Typed outcome messages passed from the callback receiver to the dispatcher
// ABOUTME: Closed tagged variant: Granted, Denied, and the Shutdown sentinel

package handoff

// Kind discriminates the closed set of outcome messages.
type Kind int

const (
	// KindGranted carries a freshly exchanged credential for a pending token.
	KindGranted Kind = iota

	// KindDenied means the user declined authorization for a pending token.
	KindDenied

	// KindShutdown is the sentinel that terminates the dispatcher loop.
	KindShutdown
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindGranted:
		return "granted"
	case KindDenied:
		return "denied"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Outcome is one message on the handoff queue. Token identifies the
// pending authorization; Credential is set only for KindGranted.
type Outcome struct {
	Kind       Kind
	Token      string
	Credential []byte
}

// Queue is the ordered single-producer/single-consumer channel carrying
// outcomes from the callback receiver to the dispatcher. Sends block when
// the buffer is full rather than dropping: each outcome notifies exactly
// one waiting user.
type Queue struct {
	ch chan Outcome
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Outcome, size)}
}

// Granted enqueues a successful authorization outcome.
func (q *Queue) Granted(token string, credential []byte) {
	q.ch <- Outcome{Kind: KindGranted, Token: token, Credential: credential}
}

// Denied enqueues a declined authorization outcome.
func (q *Queue) Denied(token string) {
	q.ch <- Outcome{Kind: KindDenied, Token: token}
}

// Shutdown enqueues the terminating sentinel. Outcomes enqueued before
// the sentinel are still processed; outcomes after it never are.
func (q *Queue) Shutdown() {
	q.ch <- Outcome{Kind: KindShutdown}
}
