package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

// Store provides an interface for persisting ground station state.
// It handles sessions, missions and vehicle parameters in a thread-safe
// manner. All operations that write to the database should be considered
// atomic.
type Store interface {
	mission.Persister

	// CreateSession records the start of a ground station run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - mode: Operating mode ("live" or "simulation")
	//   - config: Optional configuration snapshot. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, mode string, config any) (sessionID int64, err error)

	// EndSession stamps the end time of a session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - error: If the update fails or context is cancelled
	EndSession(ctx context.Context, id int64) error

	// Session retrieves a specific session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails, the session does not exist or context is cancelled
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions stored in the database.
	// Results are ordered by start time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sessions: Slice of pointers to session data
	//   - error: If retrieval fails or context is cancelled
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// Missions loads every persisted mission, oldest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - missions: Slice of decoded mission aggregates
	//   - error: If retrieval or decoding fails, or context is cancelled
	Missions(ctx context.Context) (missions []*mission.Mission, err error)

	// StoreParameters upserts vehicle parameters by name.
	// All parameters are stored in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - params: Parameters to store
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreParameters(ctx context.Context, params []mission.VehicleParameter) error

	// Parameters returns all stored vehicle parameters ordered by name.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - params: Stored parameters
	//   - error: If retrieval fails or context is cancelled
	Parameters(ctx context.Context) (params []mission.VehicleParameter, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
