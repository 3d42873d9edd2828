package model

// Frame is a single stack frame of a captured error.
type Frame struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
	Source   string `json:"source,omitempty"` // trimmed source line, empty when unreadable
}

// RequestContext is a read-only snapshot of the request an error surfaced in.
// The zero value stands for "no request".
type RequestContext struct {
	Host     string
	Path     string
	FullPath string
	Method   string
}

// CapturedException is everything derived from one error at capture time.
// Frames are ordered innermost first: Frames[0] is where the error originated.
type CapturedException struct {
	TypeName    string
	Message     string
	Frames      []Frame
	FrameString string
	Traceback   string
	Fingerprint string
	Request     RequestContext
	RequestData string
}

// Origin returns the innermost frame, or a zero Frame when no stack was recovered.
func (c CapturedException) Origin() Frame {
	if len(c.Frames) == 0 {
		return Frame{}
	}
	return c.Frames[0]
}

// Notification is the message handed to a notifier.
type Notification struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
}

// DispatchOutcome reports what happened to each collaborator for one capture.
// It is only used for logging.
type DispatchOutcome struct {
	Notified  bool
	Ticketed  bool
	NotifyErr error
	TicketErr error
}
