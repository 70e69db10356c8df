package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	gametypes "skatesync/pkg/game/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS game_state (
	game_id BIGINT PRIMARY KEY,
	p1_username TEXT NOT NULL,
	p1_user_id BIGINT NOT NULL,
	p2_username TEXT NOT NULL,
	p2_user_id BIGINT NOT NULL,
	p1_letters INT NOT NULL DEFAULT 0,
	p2_letters INT NOT NULL DEFAULT 0,
	whos_set TEXT NOT NULL,
	called_trick TEXT NOT NULL DEFAULT '',
	status_message TEXT NOT NULL DEFAULT '',
	last_synced_at BIGINT,
	dirty BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS round_actions (
	id TEXT PRIMARY KEY,
	game_id BIGINT NOT NULL,
	round_number INT NOT NULL,
	setter TEXT NOT NULL,
	receiver TEXT NOT NULL,
	trick TEXT NOT NULL,
	setter_outcome TEXT NOT NULL,
	receiver_outcome TEXT NOT NULL,
	letter_to TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	synced BOOLEAN NOT NULL DEFAULT FALSE,
	seq BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_round_actions_unsynced
	ON round_actions (game_id, synced, created_at);

CREATE TABLE IF NOT EXISTS pending_actions (
	id TEXT PRIMARY KEY,
	game_id BIGINT NOT NULL,
	action_type TEXT NOT NULL,
	payload BYTEA NOT NULL,
	created_at BIGINT NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	seq BIGSERIAL
);

CREATE TABLE IF NOT EXISTS sync_log (
	id BIGSERIAL PRIMARY KEY,
	game_id BIGINT NOT NULL,
	started_at BIGINT NOT NULL,
	completed_at BIGINT NOT NULL,
	synced_count INT NOT NULL DEFAULT 0,
	conflicts INT NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore is the durable store for the desktop/companion profile,
// where the local database is a Postgres instance instead of an embedded
// SQLite file. Same contract as SQLiteStore.
type PostgresStore struct {
	connStr string
	conn    *pgx.Conn
	ready   atomic.Bool
}

var _ Store = &PostgresStore{}

func NewPostgresStore(connStr string) *PostgresStore {
	return &PostgresStore{
		connStr: connStr,
	}
}

func (s *PostgresStore) Open(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		conn.Close(ctx)
		return fmt.Errorf("failed to execute schema migration: %v", err)
	}

	s.conn = conn
	s.ready.Store(true)

	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	if !s.ready.Load() {
		return nil
	}
	s.ready.Store(false)
	return s.conn.Close(ctx)
}

func (s *PostgresStore) SaveGameState(ctx context.Context, snapshot *gametypes.GameSnapshot) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	var lastSynced interface{}
	if snapshot.LastSyncedAt != nil {
		lastSynced = snapshot.LastSyncedAt.UnixMilli()
	}

	q := `
	INSERT INTO game_state
	(game_id, p1_username, p1_user_id, p2_username, p2_user_id,
	 p1_letters, p2_letters, whos_set, called_trick, status_message,
	 last_synced_at, dirty)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (game_id) DO UPDATE SET
		p1_username = $2, p1_user_id = $3, p2_username = $4, p2_user_id = $5,
		p1_letters = $6, p2_letters = $7, whos_set = $8, called_trick = $9,
		status_message = $10, last_synced_at = $11, dirty = $12;
	`
	_, err := s.conn.Exec(ctx, q,
		snapshot.GameID, snapshot.P1Username, snapshot.P1UserID,
		snapshot.P2Username, snapshot.P2UserID,
		snapshot.P1Letters, snapshot.P2Letters,
		snapshot.WhosSet, snapshot.CalledTrick, snapshot.StatusMessage,
		lastSynced, snapshot.Dirty)
	if err != nil {
		return fmt.Errorf("failed to upsert game state: %v", err)
	}

	return nil
}

func (s *PostgresStore) GetGameState(ctx context.Context, gameID int64) (*gametypes.GameSnapshot, error) {
	if !s.ready.Load() {
		return nil, &ErrNotReady{}
	}

	q := `
	SELECT game_id, p1_username, p1_user_id, p2_username, p2_user_id,
	       p1_letters, p2_letters, whos_set, called_trick, status_message,
	       last_synced_at, dirty
	FROM game_state WHERE game_id = $1;
	`
	snapshot := &gametypes.GameSnapshot{}
	var lastSynced *int64
	err := s.conn.QueryRow(ctx, q, gameID).Scan(
		&snapshot.GameID, &snapshot.P1Username, &snapshot.P1UserID,
		&snapshot.P2Username, &snapshot.P2UserID,
		&snapshot.P1Letters, &snapshot.P2Letters,
		&snapshot.WhosSet, &snapshot.CalledTrick, &snapshot.StatusMessage,
		&lastSynced, &snapshot.Dirty)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan game state: %v", err)
	}
	if lastSynced != nil {
		t := time.UnixMilli(*lastSynced)
		snapshot.LastSyncedAt = &t
	}

	return snapshot, nil
}

func (s *PostgresStore) QueueRoundAction(ctx context.Context, action *gametypes.RoundAction) (string, error) {
	if !s.ready.Load() {
		return "", &ErrNotReady{}
	}

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	q := `
	INSERT INTO round_actions
	(id, game_id, round_number, setter, receiver, trick,
	 setter_outcome, receiver_outcome, letter_to, author, created_at, synced)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err := s.conn.Exec(ctx, q,
		action.ID, action.GameID, action.RoundNumber,
		action.Setter, action.Receiver, action.Trick,
		string(action.SetterOutcome), string(action.ReceiverOutcome),
		action.LetterTo, action.Author, action.CreatedAt.UnixMilli(), action.Synced)
	if err != nil {
		return "", fmt.Errorf("failed to insert round action: %v", err)
	}

	return action.ID, nil
}

func (s *PostgresStore) GetUnsyncedActions(ctx context.Context, gameID int64) ([]*gametypes.RoundAction, error) {
	if !s.ready.Load() {
		return nil, &ErrNotReady{}
	}

	q := `
	SELECT id, game_id, round_number, setter, receiver, trick,
	       setter_outcome, receiver_outcome, letter_to, author, created_at, synced
	FROM round_actions
	WHERE game_id = $1 AND synced = FALSE
	ORDER BY created_at ASC, seq ASC;
	`
	rows, err := s.conn.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced actions: %v", err)
	}
	defer rows.Close()

	var actions []*gametypes.RoundAction
	for rows.Next() {
		action := &gametypes.RoundAction{}
		var setterOutcome, receiverOutcome string
		var createdAt int64
		err := rows.Scan(&action.ID, &action.GameID, &action.RoundNumber,
			&action.Setter, &action.Receiver, &action.Trick,
			&setterOutcome, &receiverOutcome, &action.LetterTo,
			&action.Author, &createdAt, &action.Synced)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round action: %v", err)
		}
		action.SetterOutcome = gametypes.Outcome(setterOutcome)
		action.ReceiverOutcome = gametypes.Outcome(receiverOutcome)
		action.CreatedAt = time.UnixMilli(createdAt)
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unsynced actions: %v", err)
	}

	return actions, nil
}

func (s *PostgresStore) MarkActionSynced(ctx context.Context, actionID string) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `UPDATE round_actions SET synced = TRUE WHERE id = $1;`
	res, err := s.conn.Exec(ctx, q, actionID)
	if err != nil {
		return fmt.Errorf("failed to mark action synced: %v", err)
	}
	if res.RowsAffected() == 0 {
		return &ErrNotFound{}
	}

	return nil
}

func (s *PostgresStore) QueuePendingAction(ctx context.Context, action *gametypes.PendingAction) (string, error) {
	if !s.ready.Load() {
		return "", &ErrNotReady{}
	}

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	q := `
	INSERT INTO pending_actions (id, game_id, action_type, payload, created_at, attempts)
	VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.conn.Exec(ctx, q,
		action.ID, action.GameID, string(action.Type), []byte(action.Payload),
		action.CreatedAt.UnixMilli(), action.Attempts)
	if err != nil {
		return "", fmt.Errorf("failed to insert pending action: %v", err)
	}

	return action.ID, nil
}

func (s *PostgresStore) GetPendingActions(ctx context.Context, gameID int64) ([]*gametypes.PendingAction, error) {
	if !s.ready.Load() {
		return nil, &ErrNotReady{}
	}

	q := `
	SELECT id, game_id, action_type, payload, created_at, attempts
	FROM pending_actions
	WHERE game_id = $1
	ORDER BY created_at ASC, seq ASC;
	`
	rows, err := s.conn.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending actions: %v", err)
	}
	defer rows.Close()

	var actions []*gametypes.PendingAction
	for rows.Next() {
		action := &gametypes.PendingAction{}
		var actionType string
		var createdAt int64
		var payload []byte
		if err := rows.Scan(&action.ID, &action.GameID, &actionType,
			&payload, &createdAt, &action.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %v", err)
		}
		action.Type = gametypes.PendingActionType(actionType)
		action.Payload = payload
		action.CreatedAt = time.UnixMilli(createdAt)
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending actions: %v", err)
	}

	return actions, nil
}

func (s *PostgresStore) DeletePendingAction(ctx context.Context, actionID string) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `DELETE FROM pending_actions WHERE id = $1;`
	if _, err := s.conn.Exec(ctx, q, actionID); err != nil {
		return fmt.Errorf("failed to delete pending action: %v", err)
	}

	return nil
}

func (s *PostgresStore) IncrementPendingAttempts(ctx context.Context, actionID string) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `UPDATE pending_actions SET attempts = attempts + 1 WHERE id = $1;`
	if _, err := s.conn.Exec(ctx, q, actionID); err != nil {
		return fmt.Errorf("failed to increment pending attempts: %v", err)
	}

	return nil
}

func (s *PostgresStore) ClearGameData(ctx context.Context, gameID int64) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM round_actions WHERE game_id = $1;`,
		`DELETE FROM pending_actions WHERE game_id = $1;`,
		`DELETE FROM game_state WHERE game_id = $1;`,
	} {
		if _, err := tx.Exec(ctx, q, gameID); err != nil {
			return fmt.Errorf("failed to clear game data: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (s *PostgresStore) UpdateUsernameInGameStates(ctx context.Context, oldName, newName string) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `
	UPDATE game_state SET
		p1_username = CASE WHEN p1_username = $1 THEN $2 ELSE p1_username END,
		p2_username = CASE WHEN p2_username = $1 THEN $2 ELSE p2_username END,
		whos_set = CASE WHEN whos_set = $1 THEN $2 ELSE whos_set END
	WHERE p1_username = $1 OR p2_username = $1 OR whos_set = $1;
	`
	if _, err := s.conn.Exec(ctx, q, oldName, newName); err != nil {
		return fmt.Errorf("failed to update username in game states: %v", err)
	}

	return nil
}

func (s *PostgresStore) UpdateUsernameInActions(ctx context.Context, oldName, newName string) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `
	UPDATE round_actions SET
		setter = CASE WHEN setter = $1 THEN $2 ELSE setter END,
		receiver = CASE WHEN receiver = $1 THEN $2 ELSE receiver END,
		letter_to = CASE WHEN letter_to = $1 THEN $2 ELSE letter_to END,
		author = CASE WHEN author = $1 THEN $2 ELSE author END
	WHERE setter = $1 OR receiver = $1 OR letter_to = $1 OR author = $1;
	`
	if _, err := s.conn.Exec(ctx, q, oldName, newName); err != nil {
		return fmt.Errorf("failed to update username in round actions: %v", err)
	}

	return nil
}

func (s *PostgresStore) ListGamesWithUnsynced(ctx context.Context) ([]int64, error) {
	if !s.ready.Load() {
		return nil, &ErrNotReady{}
	}

	q := `
	SELECT game_id FROM round_actions WHERE synced = FALSE
	UNION
	SELECT game_id FROM pending_actions;
	`
	rows, err := s.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query games with unsynced actions: %v", err)
	}
	defer rows.Close()

	var gameIDs []int64
	for rows.Next() {
		var gameID int64
		if err := rows.Scan(&gameID); err != nil {
			return nil, fmt.Errorf("failed to scan game id: %v", err)
		}
		gameIDs = append(gameIDs, gameID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game ids: %v", err)
	}

	return gameIDs, nil
}

func (s *PostgresStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	if !s.ready.Load() {
		return &ErrNotReady{}
	}

	q := `
	INSERT INTO sync_log (game_id, started_at, completed_at, synced_count, conflicts, detail)
	VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.conn.Exec(ctx, q,
		entry.GameID, entry.StartedAt.UnixMilli(), entry.CompletedAt.UnixMilli(),
		entry.SyncedCount, entry.Conflicts, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %v", err)
	}

	return nil
}
