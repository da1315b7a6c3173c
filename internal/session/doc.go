// Package session persists tracker connection settings and tracks whether the
// tool is connected.
package session
