package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/db"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PGStore struct {
	db db.Querier
}

func NewPGStore(db db.Querier) *PGStore {
	return &PGStore{db: db}
}

const selectVenue = `
		SELECT id, name, COALESCE(description,''), COALESCE(address,''), COALESCE(opening_hours,''), rating,
		       ST_Y(location::geometry), ST_X(location::geometry), photos, reviews, active_users, created_at
		FROM venues`

func (s *PGStore) List(ctx context.Context) ([]Venue, error) {
	rows, err := s.db.Query(ctx, selectVenue+`
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (Venue, error) {
	row := s.db.QueryRow(ctx, selectVenue+`
		WHERE id=$1
	`, id)
	v, err := scanVenue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Venue{}, fmt.Errorf("venue %s: %w", id, apperr.ErrNotFound)
	}
	return v, err
}

func (s *PGStore) Create(ctx context.Context, input Venue) (Venue, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.Photos == nil {
		input.Photos = []string{}
	}
	input.Reviews = []Review{}
	input.ActiveUsers = map[string]ActiveUser{}

	row := s.db.QueryRow(ctx, `
		INSERT INTO venues (id, name, description, address, opening_hours, rating, location, photos, reviews, active_users)
		VALUES ($1,$2,$3,$4,$5,$6, ST_SetSRID(ST_MakePoint($7,$8), 4326)::geography, $9, '[]'::jsonb, '{}'::jsonb)
		RETURNING created_at
	`, input.ID, input.Name, input.Description, input.Address, input.OpeningHours, input.Rating,
		input.Coordinate.Longitude, input.Coordinate.Latitude, input.Photos)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Venue{}, err
	}
	return input, nil
}

func (s *PGStore) AddActiveUser(ctx context.Context, venueID string, u ActiveUser) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE venues
		SET active_users = CASE
			WHEN active_users ? $2 THEN active_users
			ELSE active_users || jsonb_build_object($2::text, $3::jsonb)
		END
		WHERE id=$1
	`, venueID, u.ID, string(payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("venue %s: %w", venueID, apperr.ErrNotFound)
	}
	return nil
}

func (s *PGStore) RemoveActiveUser(ctx context.Context, venueID, userID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE venues SET active_users = active_users - $2::text WHERE id=$1
	`, venueID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("venue %s: %w", venueID, apperr.ErrNotFound)
	}
	return nil
}

func (s *PGStore) RefreshActiveUser(ctx context.Context, userID string, patch ProfilePatch, seen time.Time) (int64, error) {
	payload, err := json.Marshal(patch.fields(seen))
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE venues
		SET active_users = jsonb_set(active_users, ARRAY[$1::text], (active_users -> $1::text) || $2::jsonb)
		WHERE active_users ? $1::text
	`, userID, string(payload))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanVenue(row pgx.Row) (Venue, error) {
	var (
		v           Venue
		reviews     []byte
		activeUsers []byte
	)
	err := row.Scan(&v.ID, &v.Name, &v.Description, &v.Address, &v.OpeningHours, &v.Rating,
		&v.Coordinate.Latitude, &v.Coordinate.Longitude, &v.Photos, &reviews, &activeUsers, &v.CreatedAt)
	if err != nil {
		return Venue{}, err
	}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &v.Reviews); err != nil {
			return Venue{}, fmt.Errorf("decode reviews of %s: %w", v.ID, err)
		}
	}
	v.ActiveUsers = map[string]ActiveUser{}
	if len(activeUsers) > 0 {
		if err := json.Unmarshal(activeUsers, &v.ActiveUsers); err != nil {
			return Venue{}, fmt.Errorf("decode active users of %s: %w", v.ID, err)
		}
	}
	if v.Photos == nil {
		v.Photos = []string{}
	}
	return v, nil
}
