package pool

// Job is one unit of work submitted to the pool. Payload is optional
// context carried alongside Work purely for observability (e.g. which
// socket a write job targets); the pool never inspects it.
type Job struct {
	Priority Priority
	Payload  []byte
	Work     func() (ok bool, err error)
}
