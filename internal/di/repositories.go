package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/tender/internal/modules/allocation"
	"github.com/aristath/tender/internal/modules/optimization"
	"github.com/aristath/tender/internal/modules/snapshots"
)

// InitializeRepositories creates all repositories on the container's database
func InitializeRepositories(container *Container, log zerolog.Logger) {
	conn := container.DB.Conn()
	container.ConstraintRepo = allocation.NewRepository(conn, log)
	container.SnapshotRepo = snapshots.NewRepository(conn, log)
	container.RunRepo = optimization.NewRepository(conn, log)
}
