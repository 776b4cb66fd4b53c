package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      mode,
                      config)
VALUES (?, ?, ?)`

	endSessionSQL = `
UPDATE sessions
SET end_time = ?
WHERE
    id = ?`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    end_time,
    mode,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    end_time,
    mode,
    config
FROM sessions
ORDER BY start_time, id`

	upsertMissionSQL = `
INSERT INTO missions (id,
                      name,
                      status,
                      created_at,
                      updated_at,
                      body)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name       = excluded.name,
                               status     = excluded.status,
                               updated_at = excluded.updated_at,
                               body       = excluded.body`

	deleteMissionSQL = `
DELETE
FROM missions
WHERE
    id = ?`

	selectMissionsSQL = `
SELECT
    body
FROM missions
ORDER BY created_at, id`

	upsertParameterSQL = `
INSERT INTO parameters (name,
                        value,
                        description,
                        updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET value       = excluded.value,
                                 description = coalesce(excluded.description, parameters.description),
                                 updated_at  = excluded.updated_at`

	selectParametersSQL = `
SELECT
    name,
    value,
    description
FROM parameters
ORDER BY name`

)

//go:embed schema.sql
var schemaSQL string
