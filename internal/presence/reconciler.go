package presence

import (
	"context"

	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/rs/zerolog"
)

// Reconciler keeps the realtime record honest when a session ends, whether
// the user signs out, walks away or the connection drops.
type Reconciler struct {
	writer *Writer
	rt     realtime.Store
	log    zerolog.Logger
}

func NewReconciler(writer *Writer, rt realtime.Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{writer: writer, rt: rt, log: log}
}

// StartSession registers the offline rule for connID before marking the user
// online, so a connection lost in between still ends offline.
func (r *Reconciler) StartSession(ctx context.Context, connID, userID string) error {
	path := StatusPath(userID)
	err := r.rt.WriteOnDisconnect(ctx, connID, path, realtime.Value{
		"isOnline": false,
		"lastSeen": realtime.ServerTimestamp,
	})
	if err != nil {
		return apperr.Write("register disconnect rule", err)
	}
	err = r.rt.Update(ctx, path, realtime.Value{
		"isOnline": true,
		"lastSeen": realtime.ServerTimestamp,
	})
	if err != nil {
		return apperr.Write("mark online", err)
	}
	r.log.Debug().Str("action", "session_started").Str("conn_id", connID).Str("user_id", userID).Msg("presence online")
	return nil
}

// Disconnect runs the rules registered for a dropped connection.
func (r *Reconciler) Disconnect(ctx context.Context, connID string) error {
	if err := r.rt.Disconnect(ctx, connID); err != nil {
		r.log.Error().Err(err).Str("action", "disconnect_rules_failed").Str("conn_id", connID).Msg("disconnect rules incomplete")
		return apperr.Write("apply disconnect rules", err)
	}
	return nil
}

// LeaveVenue exits venueID and then clears the device's check-in state. The
// state is kept when the exit fails.
func (r *Reconciler) LeaveVenue(ctx context.Context, userID, venueID string, session SessionState) error {
	if err := r.writer.ExitVenue(ctx, venueID, userID); err != nil {
		return err
	}
	if err := session.Clear(ctx); err != nil {
		return apperr.Write("clear check-in state", err)
	}
	return nil
}

// SignOut tears the session down. Every step is best-effort: failures are
// logged and the next step still runs, since the disconnect rule covers
// whatever is left.
func (r *Reconciler) SignOut(ctx context.Context, connID, userID string, session SessionState) {
	venueID, ok, err := session.ActivePlace(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("action", "signout_read_session_failed").Str("user_id", userID).Msg("continuing sign-out")
	}
	if ok {
		if err := r.writer.ExitVenue(ctx, venueID, userID); err != nil {
			r.log.Warn().Err(err).Str("action", "signout_exit_failed").Str("user_id", userID).Str("venue_id", venueID).Msg("continuing sign-out")
		}
	}
	if err := session.Clear(ctx); err != nil {
		r.log.Warn().Err(err).Str("action", "signout_clear_failed").Str("user_id", userID).Msg("continuing sign-out")
	}

	err = r.rt.Write(ctx, StatusPath(userID), realtime.Value{
		"isOnline": false,
		"lastSeen": realtime.ServerTimestamp,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("action", "signout_offline_failed").Str("user_id", userID).Msg("continuing sign-out")
	}
	if connID != "" {
		if err := r.rt.CancelOnDisconnect(ctx, connID); err != nil {
			r.log.Warn().Err(err).Str("action", "signout_cancel_rule_failed").Str("conn_id", connID).Msg("rule left in place")
		}
	}
	r.log.Info().Str("action", "signed_out").Str("user_id", userID).Msg("session ended")
}
