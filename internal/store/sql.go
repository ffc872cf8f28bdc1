package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS teams (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    repository_url   TEXT NOT NULL,
    code             TEXT NOT NULL UNIQUE,
    created_by       TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    avg_high_vul_cnt DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (avg_high_vul_cnt >= 0),
    avg_mid_vul_cnt  DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (avg_mid_vul_cnt >= 0),
    avg_low_vul_cnt  DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (avg_low_vul_cnt >= 0)
);
CREATE TABLE IF NOT EXISTS team_members (
    team_id   TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    user_id   TEXT NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (team_id, user_id)
);
CREATE TABLE IF NOT EXISTS scan_runs (
    id             TEXT PRIMARY KEY,
    team_id        TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    repository_url TEXT NOT NULL,
    os_high        INTEGER NOT NULL,
    os_medium      INTEGER NOT NULL,
    os_low         INTEGER NOT NULL,
    cs_high        INTEGER NOT NULL,
    cs_medium      INTEGER NOT NULL,
    cs_low         INTEGER NOT NULL,
    avg_high_after DOUBLE PRECISION NOT NULL,
    avg_mid_after  DOUBLE PRECISION NOT NULL,
    avg_low_after  DOUBLE PRECISION NOT NULL,
    completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scan_runs_team_completed_idx ON scan_runs (team_id, completed_at DESC);
`

const (
	sqlInsertTeam = `
        INSERT INTO teams (id, name, repository_url, code, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6);
    `
	sqlInsertMember = `
        INSERT INTO team_members (team_id, user_id, joined_at)
        VALUES ($1, $2, $3);
    `
	sqlInsertMemberIfAbsent = `
        INSERT INTO team_members (team_id, user_id, joined_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (team_id, user_id) DO NOTHING;
    `
	sqlSelectTeam = `
        SELECT id, name, repository_url, code, created_by, created_at,
               avg_high_vul_cnt, avg_mid_vul_cnt, avg_low_vul_cnt
        FROM teams
        WHERE id = $1;
    `
	sqlSelectMembers = `
        SELECT user_id FROM team_members
        WHERE team_id = $1
        ORDER BY joined_at ASC, user_id ASC;
    `
	sqlSelectTeamByCode = `
        SELECT id FROM teams WHERE code = $1 FOR UPDATE;
    `
	sqlSelectStats = `
        SELECT avg_high_vul_cnt, avg_mid_vul_cnt, avg_low_vul_cnt
        FROM teams
        WHERE id = $1;
    `
	sqlSelectStatsForUpdate = `
        SELECT avg_high_vul_cnt, avg_mid_vul_cnt, avg_low_vul_cnt
        FROM teams
        WHERE id = $1
        FOR UPDATE;
    `
	sqlUpdateStats = `
        UPDATE teams
        SET avg_high_vul_cnt = $2, avg_mid_vul_cnt = $3, avg_low_vul_cnt = $4
        WHERE id = $1;
    `
	sqlInsertRun = `
        INSERT INTO scan_runs (
            id, team_id, repository_url,
            os_high, os_medium, os_low,
            cs_high, cs_medium, cs_low,
            avg_high_after, avg_mid_after, avg_low_after,
            completed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
    `
	sqlSelectRuns = `
        SELECT id, team_id, repository_url,
               os_high, os_medium, os_low,
               cs_high, cs_medium, cs_low,
               avg_high_after, avg_mid_after, avg_low_after,
               completed_at
        FROM scan_runs
        WHERE team_id = $1
        ORDER BY completed_at DESC
        LIMIT $2;
    `
)
