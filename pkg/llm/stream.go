package llm

// Stream is a single-pass, forward-only sequence of reply fragments produced by
// a provider. Callers loop on Next, read Fragment, and check Err once Next
// returns false. A Stream cannot be restarted.
//
//	for s.Next() {
//	    fmt.Print(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream interface {
	// Next advances to the next event. It returns false once the provider
	// signalled completion or the stream failed.
	Next() bool

	// Fragment returns the text delta of the current event. It may be empty for
	// metadata-only events.
	Fragment() string

	// Err returns the terminal error, or nil if the stream completed.
	Err() error

	// Close releases the underlying connection. It is safe to call more than once.
	Close() error
}
