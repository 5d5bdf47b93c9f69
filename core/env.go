package core

// Environment is the per-actor link to a (remote) environment. Step drives
// the environment with a flat action vector whose component count matches the
// configured action space. Implementations auto-continue past episode ends:
// a step after a Done output starts a fresh episode.
type Environment interface {
	Reset() (EnvOutput, error)
	Step(action []int) (EnvOutput, error)
	Close() error
}
