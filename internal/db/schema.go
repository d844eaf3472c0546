package db

const schemaSQL = `
-- ===========================================================================
-- SETTINGS (device connection and HEOS account)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS settings (
  setting_key TEXT PRIMARY KEY,
  device_host TEXT,
  device_port INTEGER,
  account_username TEXT,
  account_password TEXT,
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- ===========================================================================
-- ROUTINES (scheduled playback)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS routines (
  routine_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  schedule TEXT NOT NULL,
  action_type TEXT NOT NULL,
  action_json TEXT NOT NULL DEFAULT '{}',
  player_ids TEXT NOT NULL DEFAULT '[]',
  last_run_at TEXT,
  last_run_error TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routines_enabled ON routines(enabled);

-- ===========================================================================
-- HISTORY (command and event log)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS history_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  request_id TEXT,
  routine_id TEXT,
  player_id INTEGER,
  group_id INTEGER,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_history_events_timestamp ON history_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_events_type ON history_events(type);
CREATE INDEX IF NOT EXISTS idx_history_events_level ON history_events(level);
CREATE INDEX IF NOT EXISTS idx_history_events_routine_id ON history_events(routine_id) WHERE routine_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_history_events_player_id ON history_events(player_id) WHERE player_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_history_events_timestamp_level ON history_events(timestamp DESC, level);
`
