package sqlstore

import "strings"

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS diary_entries (
    entry_id     TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    entry_date   TEXT NOT NULL DEFAULT '',
    entry_time   TEXT NOT NULL DEFAULT '',
    mood         TEXT NOT NULL DEFAULT '',
    weather      TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    tags         TEXT NOT NULL DEFAULT '[]',
    analysis     TEXT,
    is_temporary BOOLEAN NOT NULL,
    created_at   {{ts}} NOT NULL,
    updated_at   {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS diary_entries_user_date ON diary_entries (user_id, entry_date);
CREATE TABLE IF NOT EXISTS profiles (
    user_id        TEXT PRIMARY KEY,
    big5           TEXT NOT NULL,
    version        BIGINT NOT NULL DEFAULT 0,
    life_map_month TEXT NOT NULL DEFAULT '',
    life_map_count INTEGER NOT NULL DEFAULT 0,
    joined_at      {{ts}} NOT NULL,
    last_updated   {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS profile_counters (
    user_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    label       TEXT NOT NULL,
    occurrences INTEGER NOT NULL,
    PRIMARY KEY (user_id, kind, label)
);
CREATE TABLE IF NOT EXISTS life_reports (
    report_id   TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    entry_count INTEGER NOT NULL,
    result      TEXT NOT NULL,
    created_at  {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS life_reports_user_created ON life_reports (user_id, created_at);
CREATE TABLE IF NOT EXISTS musics (
    music_id   TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    artist     TEXT NOT NULL,
    url        TEXT NOT NULL,
    category   TEXT NOT NULL,
    created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS musics_title ON musics (title);
CREATE TABLE IF NOT EXISTS aggregation_outbox (
    task_id         TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    entry_id        TEXT NOT NULL,
    payload         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempt_count   INTEGER NOT NULL DEFAULT 0,
    next_attempt_at {{ts}} NOT NULL,
    last_error      TEXT NOT NULL DEFAULT '',
    created_at      {{ts}} NOT NULL,
    updated_at      {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS aggregation_outbox_ready ON aggregation_outbox (status, next_attempt_at);
CREATE INDEX IF NOT EXISTS aggregation_outbox_entry ON aggregation_outbox (entry_id, status)
`

// schema renders the DDL for d, one statement per element.
func schema(d dialect) []string {
	ddl := strings.ReplaceAll(schemaTemplate, "{{ts}}", d.tsType)
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
