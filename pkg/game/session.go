package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/reachability"
	"skatesync/pkg/realtime"
	gamesync "skatesync/pkg/sync"
)

// DefaultGuardDelay is how long the resolution-in-progress guard stays
// held after a resolution completes, to absorb trailing duplicate
// triggers from re-renders or realtime echoes.
const DefaultGuardDelay = 750 * time.Millisecond

// Session is the live state of one game on this device. The in-memory
// state is authoritative for the session; the durable snapshot is
// authoritative for recovery after restart. State advances optimistically
// before persistence confirms and is never rolled back on a persistence
// failure; the sync engine's retry queue reconciles eventually.
type Session struct {
	engine   *gamesync.Engine
	channel  realtime.Channel
	monitor  reachability.Monitor
	deviceID string

	mutex           sync.Mutex
	snapshot        *gametypes.GameSnapshot
	status          gametypes.GameStatus
	roundNumber     int
	setterOutcome   gametypes.Outcome
	receiverOutcome gametypes.Outcome
	lastTryPlayer   string
	lastTrySetter   gametypes.Outcome
	lastTryReceiver gametypes.Outcome
	winner          string

	resolving    bool
	lastRoundKey string
	guardDelay   time.Duration
}

type NewSessionOptions struct {
	Engine   *gamesync.Engine
	Channel  realtime.Channel
	Monitor  reachability.Monitor
	DeviceID string
	// Snapshot is the game being played or resumed.
	Snapshot *gametypes.GameSnapshot
	// RoundNumber is the local round counter to resume from. Zero for a
	// new game.
	RoundNumber int
	// GuardDelay overrides DefaultGuardDelay. Zero means the default.
	GuardDelay time.Duration
}

func NewSession(opts NewSessionOptions) *Session {
	guardDelay := opts.GuardDelay
	if guardDelay == 0 {
		guardDelay = DefaultGuardDelay
	}

	status := gametypes.GameStatusPending
	if opts.Snapshot.CalledTrick != gametypes.NoTrickCalled {
		status = gametypes.GameStatusPlaying
	}

	return &Session{
		engine:          opts.Engine,
		channel:         opts.Channel,
		monitor:         opts.Monitor,
		deviceID:        opts.DeviceID,
		snapshot:        opts.Snapshot,
		status:          status,
		roundNumber:     opts.RoundNumber,
		setterOutcome:   gametypes.OutcomeUndecided,
		receiverOutcome: gametypes.OutcomeUndecided,
		guardDelay:      guardDelay,
	}
}

// Snapshot returns a copy of the current in-memory snapshot.
func (s *Session) Snapshot() gametypes.GameSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return *s.snapshot
}

func (s *Session) Status() gametypes.GameStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.status
}

func (s *Session) LastTryPlayer() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastTryPlayer
}

func (s *Session) Winner() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.winner
}

func (s *Session) RoundNumber() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.roundNumber
}

// CalledTrick returns the current called trick, NoTrickCalled if the
// setter has not called one.
func (s *Session) CalledTrick() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshot.CalledTrick
}

// CallTrick records the setter's trick call, clears both pending
// outcomes and notifies the peer.
func (s *Session) CallTrick(ctx context.Context, username, trick string) error {
	s.mutex.Lock()

	if s.status == gametypes.GameStatusGameOver {
		s.mutex.Unlock()
		return fmt.Errorf("game is over")
	}
	if s.lastTryPlayer != "" {
		s.mutex.Unlock()
		return fmt.Errorf("awaiting last try from %s", s.lastTryPlayer)
	}
	if username != s.snapshot.WhosSet {
		s.mutex.Unlock()
		return fmt.Errorf("%s does not have the set", username)
	}

	s.snapshot.CalledTrick = trick
	s.setterOutcome = gametypes.OutcomeUndecided
	s.receiverOutcome = gametypes.OutcomeUndecided
	s.status = gametypes.GameStatusPlaying
	snapshot := *s.snapshot
	s.mutex.Unlock()

	s.engine.SaveSnapshotDebounced(&snapshot)
	s.broadcast(ctx, realtime.EventTypeTrickCalled, &realtime.TrickCalledPayload{
		Trick:   trick,
		WhosSet: snapshot.WhosSet,
	})

	return nil
}

// SubmitOutcome records one player's land/fail input. The first input
// per player wins; a repeat submission before resolution is ignored.
// When both outcomes are present the round resolves exactly once.
func (s *Session) SubmitOutcome(ctx context.Context, username string, outcome gametypes.Outcome) error {
	if !outcome.Decided() {
		return fmt.Errorf("outcome must be landed or fell")
	}

	s.mutex.Lock()

	if s.status == gametypes.GameStatusGameOver {
		s.mutex.Unlock()
		return fmt.Errorf("game is over")
	}
	if s.lastTryPlayer != "" {
		if username != s.lastTryPlayer {
			s.mutex.Unlock()
			return fmt.Errorf("awaiting last try from %s", s.lastTryPlayer)
		}
		return s.resolveLastTryLocked(ctx, outcome)
	}
	if s.snapshot.CalledTrick == gametypes.NoTrickCalled {
		s.mutex.Unlock()
		return fmt.Errorf("no trick called")
	}

	switch username {
	case s.snapshot.WhosSet:
		if s.setterOutcome.Decided() {
			s.mutex.Unlock()
			return nil
		}
		s.setterOutcome = outcome
	case s.snapshot.Opponent(s.snapshot.WhosSet):
		if s.receiverOutcome.Decided() {
			s.mutex.Unlock()
			return nil
		}
		s.receiverOutcome = outcome
	default:
		s.mutex.Unlock()
		return fmt.Errorf("unknown player: %s", username)
	}

	if !s.setterOutcome.Decided() || !s.receiverOutcome.Decided() {
		s.mutex.Unlock()
		return nil
	}

	return s.resolveRoundLocked(ctx, username)
}

// resolveRoundLocked resolves the round from both pending outcomes. The
// caller holds the mutex; it is released before side effects run.
func (s *Session) resolveRoundLocked(ctx context.Context, author string) error {
	setter := s.snapshot.WhosSet
	receiver := s.snapshot.Opponent(setter)
	setterOutcome := s.setterOutcome
	receiverOutcome := s.receiverOutcome
	trick := s.snapshot.CalledTrick

	roundKey := fmt.Sprintf("%d:%d:%s:%s:%s",
		s.snapshot.GameID, s.roundNumber, trick, setterOutcome, receiverOutcome)
	if s.resolving || roundKey == s.lastRoundKey {
		log.Debug("Duplicate resolution trigger absorbed for %s", roundKey)
		s.mutex.Unlock()
		return nil
	}
	s.resolving = true
	s.lastRoundKey = roundKey

	state := RoundState{
		Setter:          setter,
		Receiver:        receiver,
		SetterLetters:   s.snapshot.LettersFor(setter),
		ReceiverLetters: s.snapshot.LettersFor(receiver),
		Trick:           trick,
	}
	resolution, err := Resolve(state, setterOutcome, receiverOutcome)
	if err != nil {
		s.resolving = false
		s.mutex.Unlock()
		return fmt.Errorf("failed to resolve round: %v", err)
	}

	if resolution.LastTryPlayer != "" {
		// No letter yet; the round completes after the last try. Keep
		// the called trick so the attempt repeats it.
		s.lastTryPlayer = resolution.LastTryPlayer
		s.lastTrySetter = setterOutcome
		s.lastTryReceiver = receiverOutcome
		s.snapshot.StatusMessage = resolution.Message
		snapshot := *s.snapshot
		s.releaseGuardLocked()
		s.mutex.Unlock()

		s.engine.SaveSnapshotDebounced(&snapshot)
		s.broadcast(ctx, realtime.EventTypeLastTry, &realtime.LastTryPayload{
			Username: resolution.LastTryPlayer,
		})
		return nil
	}

	action := s.applyResolutionLocked(resolution, state, setterOutcome, receiverOutcome, author)
	snapshot := *s.snapshot
	s.releaseGuardLocked()
	s.mutex.Unlock()

	s.commit(ctx, action, &snapshot, resolution)
	return nil
}

// resolveLastTryLocked resolves the one-time repeat attempt. The caller
// holds the mutex.
func (s *Session) resolveLastTryLocked(ctx context.Context, outcome gametypes.Outcome) error {
	setter := s.snapshot.WhosSet
	receiver := s.snapshot.Opponent(setter)
	trick := s.snapshot.CalledTrick

	// Key-only dedup here: the guard flag may still be held from the
	// round that entered last try, and must not absorb the attempt
	// itself. A duplicate attempt trigger carries the identical key.
	roundKey := fmt.Sprintf("%d:%d:%s:lasttry:%s",
		s.snapshot.GameID, s.roundNumber, trick, outcome)
	if roundKey == s.lastRoundKey {
		log.Debug("Duplicate last try trigger absorbed for %s", roundKey)
		s.mutex.Unlock()
		return nil
	}
	s.resolving = true
	s.lastRoundKey = roundKey

	state := RoundState{
		Setter:          setter,
		Receiver:        receiver,
		SetterLetters:   s.snapshot.LettersFor(setter),
		ReceiverLetters: s.snapshot.LettersFor(receiver),
		Trick:           trick,
	}
	lastTryPlayer := s.lastTryPlayer
	resolution, err := ResolveLastTry(state, lastTryPlayer, outcome)
	if err != nil {
		s.resolving = false
		s.mutex.Unlock()
		return fmt.Errorf("failed to resolve last try: %v", err)
	}

	// The persisted round carries the original pair of outcomes; the
	// letter field distinguishes survival from elimination.
	setterOutcome := s.lastTrySetter
	receiverOutcome := s.lastTryReceiver
	s.lastTryPlayer = ""
	s.lastTrySetter = gametypes.OutcomeUndecided
	s.lastTryReceiver = gametypes.OutcomeUndecided

	action := s.applyResolutionLocked(resolution, state, setterOutcome, receiverOutcome, lastTryPlayer)
	snapshot := *s.snapshot
	s.releaseGuardLocked()
	s.mutex.Unlock()

	s.commit(ctx, action, &snapshot, resolution)
	return nil
}

// applyResolutionLocked advances the in-memory state and builds the
// round action to persist. The caller holds the mutex.
func (s *Session) applyResolutionLocked(resolution Resolution, state RoundState, setterOutcome, receiverOutcome gametypes.Outcome, author string) *gametypes.RoundAction {
	if resolution.LetterTo != "" {
		s.snapshot.SetLettersFor(resolution.LetterTo, s.snapshot.LettersFor(resolution.LetterTo)+1)
	}
	if resolution.NextSetter != "" {
		s.snapshot.WhosSet = resolution.NextSetter
	}
	s.snapshot.StatusMessage = resolution.Message
	s.snapshot.CalledTrick = gametypes.NoTrickCalled
	s.setterOutcome = gametypes.OutcomeUndecided
	s.receiverOutcome = gametypes.OutcomeUndecided

	if resolution.GameOver {
		s.status = gametypes.GameStatusGameOver
		s.winner = resolution.Winner
	}

	s.roundNumber++

	return &gametypes.RoundAction{
		GameID:          s.snapshot.GameID,
		RoundNumber:     s.roundNumber,
		Setter:          state.Setter,
		Receiver:        state.Receiver,
		Trick:           state.Trick,
		SetterOutcome:   setterOutcome,
		ReceiverOutcome: receiverOutcome,
		LetterTo:        resolution.LetterTo,
		Author:          author,
		CreatedAt:       time.Now(),
	}
}

// commit persists and broadcasts a completed resolution. Runs without
// the mutex; the in-memory state has already advanced and is not rolled
// back if persistence fails.
func (s *Session) commit(ctx context.Context, action *gametypes.RoundAction, snapshot *gametypes.GameSnapshot, resolution Resolution) {
	if err := s.engine.SaveActionLocally(ctx, action); err != nil {
		log.Error("Failed to persist round %d for game %d: %v", action.RoundNumber, action.GameID, err)
	}
	s.engine.SaveSnapshotDebounced(snapshot)

	s.broadcast(ctx, realtime.EventTypeRoundResolved, &realtime.RoundResolvedPayload{
		RoundNumber:     action.RoundNumber,
		Setter:          action.Setter,
		Receiver:        action.Receiver,
		Trick:           action.Trick,
		SetterOutcome:   string(action.SetterOutcome),
		ReceiverOutcome: string(action.ReceiverOutcome),
		LetterTo:        action.LetterTo,
		LetterCount:     snapshot.LettersFor(action.LetterTo),
	})
	if resolution.LetterTo != "" {
		s.broadcast(ctx, realtime.EventTypeLetterUpdate, &realtime.LetterUpdatePayload{
			Username: resolution.LetterTo,
			Letters:  snapshot.LettersFor(resolution.LetterTo),
		})
	}
}

// releaseGuardLocked schedules the in-progress flag release after the
// guard delay. The round key stays recorded to absorb duplicates past
// the release.
func (s *Session) releaseGuardLocked() {
	time.AfterFunc(s.guardDelay, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		s.resolving = false
	})
}

// broadcast publishes a realtime event when online. Failure is silent;
// the server round-trip is the delivery of record.
func (s *Session) broadcast(ctx context.Context, eventType string, payload interface{}) {
	if s.channel == nil || !s.monitor.IsOnline() {
		return
	}
	event, err := realtime.NewEvent(eventType, s.snapshot.GameID, s.deviceID, payload)
	if err != nil {
		log.Error("Failed to build %s event: %v", eventType, err)
		return
	}
	if err := s.channel.Publish(ctx, event); err != nil {
		log.Debug("Failed to publish %s event: %v", eventType, err)
	}
}

// GiveLetter assigns a letter to a player without a trick. It
// synthesizes the equivalent round outcome under the current setter and
// feeds it through the same resolution path, so history and sync treat
// it like a resolved trick.
func (s *Session) GiveLetter(ctx context.Context, username string) error {
	s.mutex.Lock()

	if s.status == gametypes.GameStatusGameOver {
		s.mutex.Unlock()
		return fmt.Errorf("game is over")
	}
	if s.lastTryPlayer != "" {
		s.mutex.Unlock()
		return fmt.Errorf("awaiting last try from %s", s.lastTryPlayer)
	}
	if username != s.snapshot.P1Username && username != s.snapshot.P2Username {
		s.mutex.Unlock()
		return fmt.Errorf("unknown player: %s", username)
	}

	// A letter lands on the receiver when the setter lands and the
	// receiver falls, and on the setter in the mirrored case.
	if username == s.snapshot.WhosSet {
		s.setterOutcome = gametypes.OutcomeFell
		s.receiverOutcome = gametypes.OutcomeLanded
	} else {
		s.setterOutcome = gametypes.OutcomeLanded
		s.receiverOutcome = gametypes.OutcomeFell
	}
	if s.snapshot.CalledTrick == gametypes.NoTrickCalled {
		s.snapshot.CalledTrick = "manual letter"
	}

	return s.resolveRoundLocked(ctx, username)
}
