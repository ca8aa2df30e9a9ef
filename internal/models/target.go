// Package models contains the data structures used throughout dbackup.
package models

// Engine type tags accepted in a target's "type" field.
const (
	EnginePostgreSQL = "postgresql"
	EngineMariaDB    = "maria"
)

// Target is one named backup job from the target definition file. For
// PostgreSQL the socket field names the directory containing the server
// socket; for MariaDB/MySQL it names the socket file itself.
type Target struct {
	Name     string
	Type     string
	Socket   string
	User     string
	Password string
}
