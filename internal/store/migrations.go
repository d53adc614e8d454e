package store

type migration struct {
	version int
	sql     string
}

// migrations must stay ordered by version, starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	type               TEXT NOT NULL,
	title              TEXT NOT NULL,
	message            TEXT NOT NULL,
	priority           TEXT NOT NULL,
	audience_kind      TEXT NOT NULL,
	audience_course_id TEXT NOT NULL DEFAULT '',
	action_url         TEXT NOT NULL DEFAULT '',
	action_text        TEXT NOT NULL DEFAULT '',
	data               TEXT NOT NULL DEFAULT '',
	created_by         TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_recipients (
	notification_id TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL,
	type            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	is_hidden       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (notification_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_recipients_user_order
	ON notification_recipients(user_id, is_hidden, created_at DESC, notification_id DESC);

CREATE TABLE IF NOT EXISTS read_states (
	notification_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	is_read         INTEGER NOT NULL DEFAULT 1,
	read_at         INTEGER NOT NULL,
	PRIMARY KEY (notification_id, user_id),
	FOREIGN KEY (notification_id, user_id)
		REFERENCES notification_recipients(notification_id, user_id) ON DELETE CASCADE
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
