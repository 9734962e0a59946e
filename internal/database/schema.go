package database

const initialSchema = `
CREATE TABLE IF NOT EXISTS channels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    channel_type TEXT NOT NULL,
    resource_id TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL DEFAULT '{}',
    is_connected INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(owner_id, channel_type)
);

CREATE INDEX IF NOT EXISTS idx_channels_resource
    ON channels(channel_type, resource_id);

CREATE TABLE IF NOT EXISTS verification_challenges (
    id TEXT PRIMARY KEY,
    channel_id INTEGER NOT NULL REFERENCES channels(id),
    code TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_challenges_channel
    ON verification_challenges(channel_id, status);

CREATE INDEX IF NOT EXISTS idx_challenges_expiry
    ON verification_challenges(status, expires_at);
`
