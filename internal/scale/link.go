package scale

// Link owns the serial connection to one scale.
//
// Thread Safety: a Link is not safe for concurrent use. The Supervisor
// serialises every call per device.
type Link struct {
	desc   Descriptor
	opener Opener
	decode DecodeFunc
	port   Port

	// lastAttempts is how many raw reads the most recent Read made.
	lastAttempts int
}

// NewLink creates a closed link for desc. Call Connect before Read.
func NewLink(desc Descriptor, opener Opener) *Link {
	return &Link{
		desc:   desc,
		opener: opener,
		decode: Decoder(desc.Encoding),
	}
}

// Descriptor returns the device this link serves.
func (l *Link) Descriptor() Descriptor {
	return l.desc
}

// Connect opens the port. An already open link is left as is.
func (l *Link) Connect() error {
	if l.port != nil {
		return nil
	}

	port, err := l.opener.Open(l.desc.Port, l.desc.BaudRate, l.desc.ReadTimeout)
	if err != nil {
		return &TransportError{Kind: ErrOpenFailed, Port: l.desc.Port, Err: err}
	}
	l.port = port
	return nil
}

// Read clears any backlog on the port, then reads and decodes one frame.
// Padded scales get up to five raw reads to find a valid frame; standard
// scales get exactly one.
//
// A failure of the port is a *TransportError and leaves the link open;
// the caller decides whether to reconnect. A frame that cannot be decoded
// is a *DecodeError.
func (l *Link) Read() (float64, error) {
	l.lastAttempts = 0
	if l.port == nil {
		return 0, &TransportError{Kind: ErrClosed, Port: l.desc.Port}
	}

	if err := l.port.ResetInputBuffer(); err != nil {
		return 0, &TransportError{Kind: ErrReadFailed, Port: l.desc.Port, Err: err}
	}

	delim := l.desc.delimiter()
	weight, attempts, err := ReadWithRetry(attemptsFor(l.desc.Encoding), func() (float64, error) {
		raw, err := readUntil(l.port, delim)
		if err != nil {
			return 0, &TransportError{Kind: ErrReadFailed, Port: l.desc.Port, Err: err}
		}
		return l.decode(raw)
	})
	l.lastAttempts = attempts
	return weight, err
}

// LastAttempts reports how many raw reads the previous Read made.
func (l *Link) LastAttempts() int {
	return l.lastAttempts
}

// Close closes the port. It is idempotent and reports the close error,
// which callers usually only log.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// IsOpen reports whether the link holds an open port.
func (l *Link) IsOpen() bool {
	return l.port != nil
}
