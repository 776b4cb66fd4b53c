package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/mission"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialised on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath, now: time.Now}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// the read-only connection cannot create the database file
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, mode string, config any) (sessionID int64, err error) {
	configData, err := toNullString(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, s.now().UTC(), mode, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) EndSession(ctx context.Context, id int64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, endSessionSQL, s.now().UTC(), id); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = stmt.QueryRowContext(ctx, id).Scan(&data.ID, &data.StartTime, &data.EndTime, &data.Mode, &data.Config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return data.toSession(), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.EndTime, &data.Mode, &data.Config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, data.toSession())
	}

	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteStore) SaveMission(ctx context.Context, m *mission.Mission) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling mission: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	_, err = db.ExecContext(ctx, upsertMissionSQL,
		m.ID,
		m.Name,
		string(m.Status),
		m.CreatedAt.UTC(),
		m.UpdatedAt.UTC(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("saving mission %s: %w", m.ID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteMission(ctx context.Context, id string) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, deleteMissionSQL, id); err != nil {
		return fmt.Errorf("deleting mission %s: %w", id, err)
	}
	return nil
}

func (s *SqliteStore) Missions(ctx context.Context) (missions []*mission.Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMissionsSQL)
	if err != nil {
		err = fmt.Errorf("querying missions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			err = fmt.Errorf("scanning mission: %w", err)
			return
		}

		var m mission.Mission
		if err = json.Unmarshal([]byte(body), &m); err != nil {
			err = fmt.Errorf("decoding mission: %w", err)
			return
		}
		missions = append(missions, &m)
	}

	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating missions: %w", err)
	}
	return
}

func (s *SqliteStore) StoreParameters(ctx context.Context, params []mission.VehicleParameter) (err error) {
	if len(params) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, upsertParameterSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	now := s.now().UTC()
	for _, p := range params {
		description := sql.NullString{String: p.Description, Valid: p.Description != ""}
		if _, err = stmt.ExecContext(ctx, p.Name, float64(p.Value), description, now); err != nil {
			return fmt.Errorf("storing parameter %s: %w", p.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Parameters(ctx context.Context) (params []mission.VehicleParameter, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectParametersSQL)
	if err != nil {
		err = fmt.Errorf("querying parameters: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			name        string
			value       float64
			description sql.NullString
		)
		if err = rows.Scan(&name, &value, &description); err != nil {
			err = fmt.Errorf("scanning parameter: %w", err)
			return
		}
		params = append(params, mission.VehicleParameter{
			Name:        name,
			Value:       float32(value),
			Description: description.String,
		})
	}

	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating parameters: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
