package game

import (
	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/realtime"
)

// Peer-originated events fold into the same session state. The peer's
// device owns server delivery of its own rounds, so these applications
// persist snapshots only, never queue round actions.

// ApplyPeerTrickCall applies a trick-call event from the peer.
func (s *Session) ApplyPeerTrickCall(payload *realtime.TrickCalledPayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == gametypes.GameStatusGameOver {
		return
	}

	s.snapshot.WhosSet = payload.WhosSet
	s.snapshot.CalledTrick = payload.Trick
	s.setterOutcome = gametypes.OutcomeUndecided
	s.receiverOutcome = gametypes.OutcomeUndecided
	s.status = gametypes.GameStatusPlaying

	snapshot := *s.snapshot
	s.engine.SaveSnapshotDebounced(&snapshot)
}

// ApplyPeerLetterUpdate applies a letter-count broadcast from the peer.
func (s *Session) ApplyPeerLetterUpdate(payload *realtime.LetterUpdatePayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshot.SetLettersFor(payload.Username, payload.Letters)
	if s.snapshot.LettersFor(payload.Username) >= gametypes.MaxLetters {
		s.status = gametypes.GameStatusGameOver
		s.winner = s.snapshot.Opponent(payload.Username)
	}

	snapshot := *s.snapshot
	s.engine.SaveSnapshotDebounced(&snapshot)
}

// ApplyPeerRound applies a round the peer's device resolved. The next
// setter follows from the outcomes: the setter keeps the set when they
// landed, otherwise it passes.
func (s *Session) ApplyPeerRound(payload *realtime.RoundResolvedPayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	setterOutcome, err := gametypes.ParseOutcome(payload.SetterOutcome)
	if err != nil {
		log.Error("Invalid setter outcome in peer round: %v", err)
		return
	}

	if payload.LetterTo != "" {
		// Absolute count from the payload keeps the application
		// idempotent when the round's letter_update already landed.
		s.snapshot.SetLettersFor(payload.LetterTo, payload.LetterCount)
		if s.snapshot.LettersFor(payload.LetterTo) >= gametypes.MaxLetters {
			s.status = gametypes.GameStatusGameOver
			s.winner = s.snapshot.Opponent(payload.LetterTo)
		}
	}

	if setterOutcome == gametypes.OutcomeLanded {
		s.snapshot.WhosSet = payload.Setter
	} else {
		s.snapshot.WhosSet = payload.Receiver
	}

	s.snapshot.CalledTrick = gametypes.NoTrickCalled
	s.setterOutcome = gametypes.OutcomeUndecided
	s.receiverOutcome = gametypes.OutcomeUndecided
	s.lastTryPlayer = ""
	if payload.RoundNumber > s.roundNumber {
		s.roundNumber = payload.RoundNumber
	}

	snapshot := *s.snapshot
	s.engine.SaveSnapshotDebounced(&snapshot)
}

// ApplyPeerLastTry records that the peer's device put a player on their
// last try.
func (s *Session) ApplyPeerLastTry(payload *realtime.LastTryPayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.status == gametypes.GameStatusGameOver {
		return
	}

	s.lastTryPlayer = payload.Username

	snapshot := *s.snapshot
	s.engine.SaveSnapshotDebounced(&snapshot)
}

// ApplyPeerSyncState applies a sync-response from a peer that holds
// current state, recovering this client after a reconnect.
func (s *Session) ApplyPeerSyncState(payload *realtime.SyncResponsePayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshot.WhosSet = payload.WhosSet
	s.snapshot.CalledTrick = payload.CalledTrick
	s.snapshot.P1Letters = payload.P1Letters
	s.snapshot.P2Letters = payload.P2Letters
	if payload.CalledTrick != gametypes.NoTrickCalled {
		s.status = gametypes.GameStatusPlaying
	}

	snapshot := *s.snapshot
	s.engine.SaveSnapshotDebounced(&snapshot)
}
