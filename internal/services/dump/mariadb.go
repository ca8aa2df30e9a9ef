package dump

import (
	"time"

	"github.com/opsdeck/dbackup/internal/models"
)

// MariaDBStrategy dumps every database in a MariaDB or MySQL instance
// through mysqldump. The target's socket field is the path of the server's
// UNIX socket file.
type MariaDBStrategy struct{}

// BuildInvocation builds the mysqldump command for one target. The password
// travels in MYSQL_PWD rather than a --password flag so it never shows up in
// process listings. --single-transaction takes a consistent snapshot without
// locking InnoDB tables.
func (MariaDBStrategy) BuildInvocation(target models.Target) Invocation {
	return Invocation{
		Name: "mysqldump",
		Args: []string{
			"--socket=" + target.Socket,
			"--user=" + target.User,
			"--all-databases",
			"--single-transaction",
			"--quick",
			"--routines",
			"--events",
			"--triggers",
		},
		Env: []string{"MYSQL_PWD=" + target.Password},
	}
}

// OutputFilename builds the timestamped filename for one dump.
func (MariaDBStrategy) OutputFilename(target string, now time.Time) string {
	return dumpFilename(target, now)
}
