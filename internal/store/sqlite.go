package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

const sqliteOpTimeout = 5 * time.Second

// SQLiteStore persists rows in a local SQLite database. SQLite has no
// change feed of its own, so commits publish into the in-process hub;
// a single-binary deployment has exactly one writer, which makes that
// equivalent to row-level notifications.
type SQLiteStore struct {
	db  *sql.DB
	hub *hub
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, hub: newHub()}, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS rooms (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    current_turn_player_id TEXT NOT NULL DEFAULT '',
    template_id TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    created_at_ms INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS players (
    id TEXT PRIMARY KEY,
    room_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    turn_order INTEGER NOT NULL,
    account_id INTEGER NOT NULL DEFAULT 0,
    created_at_ms INTEGER NOT NULL,
    FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_players_room_turn ON players(room_id, turn_order)`,
		`
CREATE TABLE IF NOT EXISTS placements (
    id TEXT PRIMARY KEY,
    room_id TEXT NOT NULL,
    player_id TEXT NOT NULL,
    part_type TEXT NOT NULL,
    part_id TEXT NOT NULL,
    x REAL NOT NULL DEFAULT 0,
    y REAL NOT NULL DEFAULT 0,
    scale REAL NOT NULL DEFAULT 1,
    rotation REAL NOT NULL DEFAULT 0,
    placed_at_ms INTEGER NOT NULL,
    FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_placements_room_part ON placements(room_id, part_type)`,
		`CREATE INDEX IF NOT EXISTS idx_placements_room_placed ON placements(room_id, placed_at_ms, id)`,
		`
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    image_url TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL
)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRoom(ctx context.Context) (fukuwarai.Room, error) {
	room := fukuwarai.Room{
		ID:        uuid.NewString(),
		Status:    fukuwarai.RoomStatusWaiting,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO rooms (id, status, version, created_at_ms)
VALUES (?, ?, 1, ?)
`, room.ID, room.Status.String(), room.CreatedAt.UnixMilli())
	if err != nil {
		return fukuwarai.Room{}, err
	}
	return room, nil
}

const roomColumns = `id, status, current_turn_player_id, template_id, version, created_at_ms`

func scanRoom(row interface{ Scan(...any) error }) (fukuwarai.Room, error) {
	var (
		room      fukuwarai.Room
		status    string
		createdMs int64
	)
	if err := row.Scan(&room.ID, &status, &room.CurrentTurnPlayerID, &room.TemplateID, &room.Version, &createdMs); err != nil {
		return fukuwarai.Room{}, err
	}
	parsed, ok := fukuwarai.ParseRoomStatus(status)
	if !ok {
		return fukuwarai.Room{}, fmt.Errorf("unknown room status %q", status)
	}
	room.Status = parsed
	room.CreatedAt = time.UnixMilli(createdMs).UTC()
	return room, nil
}

func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (fukuwarai.Room, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, `
SELECT `+roomColumns+` FROM rooms WHERE id = ?
`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return fukuwarai.Room{}, ErrNotFound
	}
	return room, err
}

func (s *SQLiteStore) CreatePlayer(ctx context.Context, roomID, displayName string, turnOrder int, accountID uint64) (fukuwarai.Player, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return fukuwarai.Player{}, err
	}

	player := fukuwarai.Player{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		DisplayName: displayName,
		TurnOrder:   turnOrder,
		AccountID:   accountID,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO players (id, room_id, display_name, turn_order, account_id, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
`, player.ID, player.RoomID, player.DisplayName, player.TurnOrder, player.AccountID, player.CreatedAt.UnixMilli())
	if err != nil {
		if isSQLiteUniqueViolation(err, "players") {
			return fukuwarai.Player{}, ErrTurnOrderTaken
		}
		return fukuwarai.Player{}, err
	}

	s.hub.publish(roomID, Event{Type: EventPlayerJoined, Player: player})
	return player, nil
}

func (s *SQLiteStore) ListPlayers(ctx context.Context, roomID string) ([]fukuwarai.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, room_id, display_name, turn_order, account_id, created_at_ms
FROM players
WHERE room_id = ?
ORDER BY turn_order
`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []fukuwarai.Player
	for rows.Next() {
		var (
			p         fukuwarai.Player
			createdMs int64
		)
		if err := rows.Scan(&p.ID, &p.RoomID, &p.DisplayName, &p.TurnOrder, &p.AccountID, &createdMs); err != nil {
			return nil, err
		}
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *SQLiteStore) InsertPlacement(ctx context.Context, in PlacementInput) (fukuwarai.Placement, error) {
	if _, err := s.GetRoom(ctx, in.RoomID); err != nil {
		return fukuwarai.Placement{}, err
	}

	placement := fukuwarai.Placement{
		ID:       uuid.NewString(),
		RoomID:   in.RoomID,
		PlayerID: in.PlayerID,
		PartType: in.PartType,
		PartID:   in.PartID,
		X:        in.X,
		Y:        in.Y,
		Scale:    in.Scale,
		Rotation: in.Rotation,
		PlacedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO placements (id, room_id, player_id, part_type, part_id, x, y, scale, rotation, placed_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, placement.ID, placement.RoomID, placement.PlayerID, placement.PartType.String(), placement.PartID,
		placement.X, placement.Y, placement.Scale, placement.Rotation, placement.PlacedAt.UnixMilli())
	if err != nil {
		if isSQLiteUniqueViolation(err, "placements") {
			return fukuwarai.Placement{}, ErrConstraintViolation
		}
		return fukuwarai.Placement{}, err
	}

	s.hub.publish(in.RoomID, Event{Type: EventPlacementInserted, Placement: placement})
	return placement, nil
}

func (s *SQLiteStore) ListPlacements(ctx context.Context, roomID string) ([]fukuwarai.Placement, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, room_id, player_id, part_type, part_id, x, y, scale, rotation, placed_at_ms
FROM placements
WHERE room_id = ?
ORDER BY placed_at_ms, id
`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var placements []fukuwarai.Placement
	for rows.Next() {
		var (
			p        fukuwarai.Placement
			partType string
			placedMs int64
		)
		if err := rows.Scan(&p.ID, &p.RoomID, &p.PlayerID, &partType, &p.PartID, &p.X, &p.Y, &p.Scale, &p.Rotation, &placedMs); err != nil {
			return nil, err
		}
		parsed, ok := fukuwarai.ParsePartType(partType)
		if !ok {
			return nil, fmt.Errorf("unknown part type %q in row %s", partType, p.ID)
		}
		p.PartType = parsed
		p.PlacedAt = time.UnixMilli(placedMs).UTC()
		placements = append(placements, p)
	}
	return placements, rows.Err()
}

func (s *SQLiteStore) UpdateRoomCurrentTurn(ctx context.Context, roomID, nextPlayerID string) (fukuwarai.Room, error) {
	return s.updateRoom(ctx, roomID, `
UPDATE rooms SET current_turn_player_id = ?, version = version + 1 WHERE id = ?
`, nextPlayerID, roomID)
}

func (s *SQLiteStore) UpdateRoomStatus(ctx context.Context, roomID string, status fukuwarai.RoomStatus) (fukuwarai.Room, error) {
	return s.updateRoom(ctx, roomID, `
UPDATE rooms SET status = ?, version = version + 1 WHERE id = ?
`, status.String(), roomID)
}

func (s *SQLiteStore) SetRoomTemplate(ctx context.Context, roomID, templateID string) (fukuwarai.Room, error) {
	return s.updateRoom(ctx, roomID, `
UPDATE rooms SET template_id = ?, version = version + 1 WHERE id = ?
`, templateID, roomID)
}

func (s *SQLiteStore) StartRoom(ctx context.Context, roomID, firstPlayerID string) (fukuwarai.Room, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE rooms
SET status = ?, current_turn_player_id = ?, version = version + 1
WHERE id = ? AND status = ?
`, fukuwarai.RoomStatusPlaying.String(), firstPlayerID, roomID, fukuwarai.RoomStatusWaiting.String())
	if err != nil {
		return fukuwarai.Room{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fukuwarai.Room{}, err
	}
	if affected == 0 {
		if _, getErr := s.GetRoom(ctx, roomID); getErr != nil {
			return fukuwarai.Room{}, getErr
		}
		return fukuwarai.Room{}, ErrRoomNotWaiting
	}
	return s.publishRoom(ctx, roomID)
}

func (s *SQLiteStore) updateRoom(ctx context.Context, roomID, query string, args ...any) (fukuwarai.Room, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fukuwarai.Room{}, err
	}
	if affected == 0 {
		return fukuwarai.Room{}, ErrNotFound
	}
	return s.publishRoom(ctx, roomID)
}

func (s *SQLiteStore) publishRoom(ctx context.Context, roomID string) (fukuwarai.Room, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return fukuwarai.Room{}, err
	}
	s.hub.publish(roomID, Event{Type: EventRoomUpdated, Room: room})
	return room, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]fukuwarai.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, image_url, created_at_ms FROM templates ORDER BY created_at_ms, id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []fukuwarai.Template
	for rows.Next() {
		var (
			tpl       fukuwarai.Template
			createdMs int64
		)
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.ImageURL, &createdMs); err != nil {
			return nil, err
		}
		tpl.CreatedAt = time.UnixMilli(createdMs).UTC()
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (s *SQLiteStore) SeedTemplates(ctx context.Context, templates []fukuwarai.Template) error {
	for _, tpl := range templates {
		createdAt := tpl.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := s.db.ExecContext(ctx, `
INSERT INTO templates (id, name, image_url, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, tpl.ID, tpl.Name, tpl.ImageURL, createdAt.UnixMilli()); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SubscribeRoom(roomID string) (*Subscription, error) {
	return s.hub.subscribe(roomID)
}

func (s *SQLiteStore) Close() error {
	s.hub.closeAll(true)
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isSQLiteUniqueViolation(err error, table string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") && strings.Contains(msg, table+".")
}
