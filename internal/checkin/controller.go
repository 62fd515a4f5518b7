package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/location"
	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/shared/apperr"

	"github.com/rs/zerolog"
)

type State int

const (
	Idle State = iota
	Scanning
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Scanning, AwaitingConfirmation} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown check-in state %q", text)
}

// Event is one input of the flow. Events are applied one at a time.
type Event interface {
	event()
}

type LocationUpdated struct {
	Fix location.Fix
}

// PromptAnswered resolves the pending prompt. An empty VenueID answers
// whichever prompt is pending.
type PromptAnswered struct {
	VenueID string
	Confirm bool
}

type VenueExited struct{}

type SignedOut struct {
	ConnID string
}

type LocationDenied struct{}

func (LocationUpdated) event() {}
func (PromptAnswered) event()  {}
func (VenueExited) event()     {}
func (SignedOut) event()       {}
func (LocationDenied) event()  {}

type Prompt struct {
	VenueID   string  `json:"venue_id"`
	VenueName string  `json:"venue_name"`
	DistanceM float64 `json:"distance_m"`
}

var (
	ErrNoPendingPrompt = errors.New("no check-in prompt pending")
	ErrPromptMismatch  = errors.New("answer does not match the pending prompt")
)

type PresenceWriter interface {
	EnterVenue(ctx context.Context, venueID, userID string) error
}

type SessionReconciler interface {
	Leaver
	SignOut(ctx context.Context, connID, userID string, session presence.SessionState)
}

// Controller is the check-in state machine of one device.
type Controller struct {
	userID     string
	session    *Session
	scanner    *Scanner
	writer     PresenceWriter
	reconciler SessionReconciler
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	state    State
	pending  *Prompt
	onPrompt func(Prompt)
}

func NewController(userID string, session *Session, scanner *Scanner, writer PresenceWriter, reconciler SessionReconciler, log zerolog.Logger) *Controller {
	return &Controller{
		userID:     userID,
		session:    session,
		scanner:    scanner,
		writer:     writer,
		reconciler: reconciler,
		log:        log.With().Str("user_id", userID).Logger(),
		now:        time.Now,
	}
}

// OnPrompt registers fn to be called whenever a new prompt is raised. fn runs
// while the controller is busy and must not call back into it.
func (c *Controller) OnPrompt(fn func(Prompt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPrompt = fn
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Pending() (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Prompt{}, false
	}
	return *c.pending, true
}

func (c *Controller) Session() *Session {
	return c.session
}

// Handle applies ev and returns the error the user should see, if any.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case LocationUpdated:
		return c.locationUpdated(ctx, e)
	case PromptAnswered:
		return c.promptAnswered(ctx, e)
	case VenueExited:
		return c.venueExited(ctx)
	case SignedOut:
		c.reconciler.SignOut(ctx, e.ConnID, c.userID, c.session)
		c.session.ResetRejections()
		c.pending = nil
		c.state = Idle
		return nil
	case LocationDenied:
		c.log.Warn().Str("action", "location_denied").Msg("location permission refused")
		return fmt.Errorf("location: %w", apperr.ErrPermissionDenied)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
}

// Run applies events from the channel until it closes or ctx ends. Errors go
// to onErr.
func (c *Controller) Run(ctx context.Context, events <-chan Event, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.Handle(ctx, ev); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

func (c *Controller) locationUpdated(ctx context.Context, e LocationUpdated) error {
	prev := c.state
	c.state = Scanning
	candidates, err := c.scanner.Scan(ctx, c.userID, c.session, e.Fix.Coordinate)
	c.state = prev
	if err != nil {
		return err
	}
	if c.pending != nil {
		return nil
	}

	active, _, err := c.session.ActivePlace(ctx)
	if err != nil {
		return apperr.Read("read check-in state", err)
	}
	for _, cand := range candidates {
		if cand.ID == active || c.session.Rejected(cand.ID) {
			continue
		}
		c.pending = &Prompt{VenueID: cand.ID, VenueName: cand.Name, DistanceM: cand.DistanceM}
		c.state = AwaitingConfirmation
		c.log.Info().Str("action", "checkin_prompted").Str("venue_id", cand.ID).Float64("distance_m", cand.DistanceM).Msg("asking for check-in")
		if c.onPrompt != nil {
			c.onPrompt(*c.pending)
		}
		return nil
	}
	return nil
}

func (c *Controller) promptAnswered(ctx context.Context, e PromptAnswered) error {
	if c.pending == nil {
		return ErrNoPendingPrompt
	}
	if e.VenueID != "" && e.VenueID != c.pending.VenueID {
		return fmt.Errorf("%s: %w", e.VenueID, ErrPromptMismatch)
	}
	p := *c.pending
	c.pending = nil
	c.state = Idle

	if !e.Confirm {
		c.session.Reject(p.VenueID)
		c.log.Info().Str("action", "checkin_rejected").Str("venue_id", p.VenueID).Msg("check-in declined")
		return nil
	}

	active, hasActive, err := c.session.ActivePlace(ctx)
	if err != nil {
		return apperr.Read("read check-in state", err)
	}
	if hasActive && active != p.VenueID {
		if err := c.reconciler.LeaveVenue(ctx, c.userID, active, c.session); err != nil {
			return err
		}
	}
	if err := c.writer.EnterVenue(ctx, p.VenueID, c.userID); err != nil {
		c.log.Error().Err(err).Str("action", "checkin_failed").Str("venue_id", p.VenueID).Msg("check-in not recorded")
		return err
	}
	if err := c.session.Confirm(ctx, p.VenueID, c.now()); err != nil {
		return apperr.Write("persist check-in", err)
	}
	c.log.Info().Str("action", "checkin_confirmed").Str("venue_id", p.VenueID).Msg("checked in")
	return nil
}

func (c *Controller) venueExited(ctx context.Context) error {
	active, hasActive, err := c.session.ActivePlace(ctx)
	if err != nil {
		return apperr.Read("read check-in state", err)
	}
	if !hasActive {
		return nil
	}
	return c.reconciler.LeaveVenue(ctx, c.userID, active, c.session)
}
