// Package deps locates the external tools kitsupub shells out to.
package deps

// Status reports whether an external tool can be run and which command will
// be executed.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}
