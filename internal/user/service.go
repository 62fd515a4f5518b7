package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/db"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var ErrEmptyUpdate = errors.New("nothing to update")

type Service struct {
	db     db.Querier
	venues *venue.Service
	log    zerolog.Logger
}

func NewService(db db.Querier, venues *venue.Service, log zerolog.Logger) *Service {
	return &Service{db: db, venues: venues, log: log}
}

func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(full_name,''), COALESCE(avatar_url,''), COALESCE(status,''), allow_messages
		FROM users WHERE id=$1
	`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Profile{}, apperr.Read("get profile", err)
	}
	return p, nil
}

// UpdateProfile stores the change and refreshes the user's snapshot in every
// venue where they are checked in. A failed refresh is logged; the venues
// catch up on the next presence write.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
	if upd.empty() {
		return Profile{}, ErrEmptyUpdate
	}
	row := s.db.QueryRow(ctx, `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    avatar_url = COALESCE($3, avatar_url),
		    status = COALESCE($4, status),
		    allow_messages = COALESCE($5, allow_messages),
		    updated_at = now()
		WHERE id=$1
		RETURNING id, COALESCE(full_name,''), COALESCE(avatar_url,''), COALESCE(status,''), allow_messages
	`, id, upd.Name, upd.PhotoURL, upd.Status, upd.AllowMessages)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Profile{}, apperr.Write("update profile", err)
	}

	if s.venues != nil {
		n, err := s.venues.RefreshActiveUser(ctx, id, venue.ProfilePatch{
			Name:          upd.Name,
			PhotoURL:      upd.PhotoURL,
			Status:        upd.Status,
			AllowMessages: upd.AllowMessages,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("action", "profile_propagate_failed").Str("user_id", id).Msg("venue snapshots not refreshed")
		} else if n > 0 {
			s.log.Debug().Str("action", "profile_propagated").Str("user_id", id).Int64("venues", n).Msg("venue snapshots refreshed")
		}
	}
	return p, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Name, &p.PhotoURL, &p.Status, &p.AllowMessages); err != nil {
		return Profile{}, err
	}
	if p.Name == "" {
		p.Name = UnnamedUser
	}
	if p.Status == "" {
		p.Status = auth.DefaultStatus
	}
	return p, nil
}
