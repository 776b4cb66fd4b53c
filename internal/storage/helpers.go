package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

// toNullString accepts a string, a byte slice or anything JSON can encode
func toNullString(v any) (sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func (s *sessionData) toSession() *Session {
	sess := Session{
		ID:        s.ID,
		StartTime: s.StartTime,
		Mode:      s.Mode,
	}
	if s.EndTime.Valid {
		end := s.EndTime.Time
		sess.EndTime = &end
	}
	if s.Config.Valid {
		config := s.Config.String
		sess.Config = &config
	}
	return &sess
}
