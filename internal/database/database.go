package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"channelsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the persistence gateway. The core requires only idempotent
// upsert-by-natural-key and consistent read-after-write from it.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (and creates if needed) the sqlite database at dbPath.
func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(initialSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

const channelColumns = `id, owner_id, channel_type, resource_id, config, is_connected, created_at, updated_at`

func (d *Database) scanChannel(row *sql.Row) (*models.Channel, error) {
	ch := &models.Channel{}
	var encryptedConfig string
	var connected int

	err := row.Scan(
		&ch.ID,
		&ch.OwnerID,
		&ch.Type,
		new(string), // resource_id is derivable from config; scan and discard
		&encryptedConfig,
		&connected,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}

	ch.IsConnected = connected != 0

	rawConfig, err := d.encryptor.DecryptIfEnabled(encryptedConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt channel config: %w", err)
	}
	if err := ch.UnmarshalConfig(rawConfig); err != nil {
		return nil, err
	}
	return ch, nil
}

// FindChannel looks up a channel by its natural key. Returns (nil, nil)
// when no channel exists.
func (d *Database) FindChannel(ctx context.Context, ownerID string, channelType models.ChannelType) (*models.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM channels WHERE owner_id = ? AND channel_type = ?`, channelColumns)
	return d.scanChannel(d.db.QueryRowContext(ctx, query, ownerID, channelType))
}

// FindChannelByResource looks up a channel by the provider resource id, the
// secondary dedup key used when a provider returns the same instance on
// retry. Returns (nil, nil) when no channel exists.
func (d *Database) FindChannelByResource(ctx context.Context, channelType models.ChannelType, resourceID string) (*models.Channel, error) {
	if resourceID == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM channels WHERE channel_type = ? AND resource_id = ?`, channelColumns)
	return d.scanChannel(d.db.QueryRowContext(ctx, query, channelType, resourceID))
}

// GetChannelByID fetches a channel by its row id. Returns (nil, nil) when
// no channel exists.
func (d *Database) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := fmt.Sprintf(`SELECT %s FROM channels WHERE id = ?`, channelColumns)
	return d.scanChannel(d.db.QueryRowContext(ctx, query, id))
}

// UpsertChannel inserts the channel or updates the existing row with the
// same (owner_id, channel_type). The returned channel carries the
// authoritative row id and timestamps.
func (d *Database) UpsertChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel: %w", err)
	}

	rawConfig, err := ch.MarshalConfig()
	if err != nil {
		return nil, err
	}
	encryptedConfig, err := d.encryptor.EncryptIfEnabled(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt channel config: %w", err)
	}

	connected := 0
	if ch.IsConnected {
		connected = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO channels (owner_id, channel_type, resource_id, config, is_connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, channel_type) DO UPDATE SET
			resource_id = excluded.resource_id,
			config = excluded.config,
			is_connected = excluded.is_connected,
			updated_at = excluded.updated_at
	`

	if _, err := d.db.ExecContext(ctx, query,
		ch.OwnerID, ch.Type, ch.ResourceID(), encryptedConfig, connected, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert channel: %w", err)
	}

	return d.FindChannel(ctx, ch.OwnerID, ch.Type)
}

// SetChannelConnected flips the connection flag without touching the config.
func (d *Database) SetChannelConnected(ctx context.Context, id int64, connected bool) error {
	val := 0
	if connected {
		val = 1
	}
	_, err := d.db.ExecContext(ctx,
		`UPDATE channels SET is_connected = ?, updated_at = ? WHERE id = ?`,
		val, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update channel connection state: %w", err)
	}
	return nil
}

// SaveChallenge stores a new challenge, expiring any prior pending
// challenge for the same channel in the same transaction.
func (d *Database) SaveChallenge(ctx context.Context, c *models.VerificationChallenge) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE verification_challenges SET status = ?, updated_at = ? WHERE channel_id = ? AND status = ?`,
		models.ChallengeStatusExpired, now, c.ChannelID, models.ChallengeStatusPending,
	); err != nil {
		return fmt.Errorf("failed to expire prior challenges: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO verification_challenges (id, channel_id, code, status, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ChannelID, c.Code, c.Status, c.ExpiresAt.UTC(), now, now,
	); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}

	return tx.Commit()
}

// GetChallengeByChannel returns the most recent challenge for a channel.
// Returns (nil, nil) when the channel has no challenges.
func (d *Database) GetChallengeByChannel(ctx context.Context, channelID int64) (*models.VerificationChallenge, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, channel_id, code, status, expires_at, created_at, updated_at
		 FROM verification_challenges WHERE channel_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, channelID)

	c := &models.VerificationChallenge{}
	err := row.Scan(&c.ID, &c.ChannelID, &c.Code, &c.Status, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

// UpdateChallengeStatus transitions a challenge to the given status.
func (d *Database) UpdateChallengeStatus(ctx context.Context, id string, status models.ChallengeStatus) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE verification_challenges SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update challenge status: %w", err)
	}
	return nil
}

// DeleteExpiredChallenges marks pending challenges past their expiry as
// expired and returns how many were swept.
func (d *Database) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE verification_challenges SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at < ?`,
		models.ChallengeStatusExpired, now.UTC(), models.ChallengeStatusPending, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired challenges: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept challenges: %w", err)
	}
	return n, nil
}
