package dump

import (
	"time"

	"github.com/opsdeck/dbackup/internal/models"
)

// PostgresStrategy dumps every database in a PostgreSQL instance through
// pg_dumpall. libpq treats a host value starting with '/' as the directory
// containing the server's UNIX socket, so the target's socket field is the
// socket directory here.
type PostgresStrategy struct{}

// BuildInvocation builds the pg_dumpall command for one target. The password
// travels in PGPASSWORD; --no-password keeps the utility from prompting when
// authentication fails.
func (PostgresStrategy) BuildInvocation(target models.Target) Invocation {
	return Invocation{
		Name: "pg_dumpall",
		Args: []string{
			"--host=" + target.Socket,
			"--username=" + target.User,
			"--no-password",
		},
		Env: []string{"PGPASSWORD=" + target.Password},
	}
}

// OutputFilename builds the timestamped filename for one dump.
func (PostgresStrategy) OutputFilename(target string, now time.Time) string {
	return dumpFilename(target, now)
}
