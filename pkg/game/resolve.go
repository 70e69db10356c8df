// Package game is the authoritative turn state machine for one live
// game session. Resolution is a pure function of the current state and
// both players' outcomes; committing the result (persist + sync +
// broadcast) is a separate side-effecting step owned by the Session.
package game

import (
	"fmt"

	gametypes "skatesync/pkg/game/types"
)

// RoundState is the working state a resolution is computed from.
type RoundState struct {
	Setter          string
	Receiver        string
	SetterLetters   int
	ReceiverLetters int
	Trick           string
}

// Resolution is the computed outcome of one round. Applying it to the
// session state and persisting it are the caller's job.
type Resolution struct {
	// LetterTo is the username gaining a letter, empty for none.
	LetterTo string
	// NextSetter is who sets after this round.
	NextSetter string
	// LastTryPlayer is non-empty when the round put a player on their
	// one-time last try instead of assigning the final letter.
	LastTryPlayer string
	GameOver      bool
	Winner        string
	Message       string
}

// Resolve computes the outcome of a round from both players' inputs.
//
// Both land: no letter, set continues with the same setter.
// Both fall: no letter, set passes.
// Setter lands, receiver falls: receiver gains a letter and the set
// stays, unless the receiver is one letter from elimination, in which
// case they enter last try instead.
// Setter falls, receiver lands: symmetric for the setter, and the set
// passes.
func Resolve(state RoundState, setterOutcome, receiverOutcome gametypes.Outcome) (Resolution, error) {
	if !setterOutcome.Decided() || !receiverOutcome.Decided() {
		return Resolution{}, fmt.Errorf("cannot resolve round with undecided outcomes")
	}

	setterLanded := setterOutcome == gametypes.OutcomeLanded
	receiverLanded := receiverOutcome == gametypes.OutcomeLanded

	switch {
	case setterLanded && receiverLanded:
		return Resolution{
			NextSetter: state.Setter,
			Message:    fmt.Sprintf("Both landed %s, %s keeps the set", state.Trick, state.Setter),
		}, nil

	case !setterLanded && !receiverLanded:
		return Resolution{
			NextSetter: state.Receiver,
			Message:    fmt.Sprintf("Both fell, set passes to %s", state.Receiver),
		}, nil

	case setterLanded:
		if state.ReceiverLetters >= gametypes.MaxLetters-1 {
			return Resolution{
				NextSetter:    state.Setter,
				LastTryPlayer: state.Receiver,
				Message:       fmt.Sprintf("%s is on their last try", state.Receiver),
			}, nil
		}
		letters := state.ReceiverLetters + 1
		res := Resolution{
			LetterTo:   state.Receiver,
			NextSetter: state.Setter,
			Message:    fmt.Sprintf("%s gets a letter (%d)", state.Receiver, letters),
		}
		if letters >= gametypes.MaxLetters {
			res.GameOver = true
			res.Winner = state.Setter
			res.Message = fmt.Sprintf("%s is out, %s wins", state.Receiver, state.Setter)
		}
		return res, nil

	default:
		if state.SetterLetters >= gametypes.MaxLetters-1 {
			return Resolution{
				NextSetter:    state.Setter,
				LastTryPlayer: state.Setter,
				Message:       fmt.Sprintf("%s is on their last try", state.Setter),
			}, nil
		}
		letters := state.SetterLetters + 1
		res := Resolution{
			LetterTo:   state.Setter,
			NextSetter: state.Receiver,
			Message:    fmt.Sprintf("%s gets a letter (%d), set passes to %s", state.Setter, letters, state.Receiver),
		}
		if letters >= gametypes.MaxLetters {
			res.GameOver = true
			res.Winner = state.Receiver
			res.Message = fmt.Sprintf("%s is out, %s wins", state.Setter, state.Receiver)
		}
		return res, nil
	}
}

// ResolveLastTry computes the outcome of a last-try attempt. Landing
// survives with no letter: a surviving receiver leaves the set with the
// setter, a surviving setter passes the set. Falling assigns the final
// letter and ends the game.
func ResolveLastTry(state RoundState, lastTryPlayer string, outcome gametypes.Outcome) (Resolution, error) {
	if !outcome.Decided() {
		return Resolution{}, fmt.Errorf("cannot resolve last try with undecided outcome")
	}
	if lastTryPlayer != state.Setter && lastTryPlayer != state.Receiver {
		return Resolution{}, fmt.Errorf("last try player %s is not in this round", lastTryPlayer)
	}

	survivorIsSetter := lastTryPlayer == state.Setter

	if outcome == gametypes.OutcomeLanded {
		next := state.Setter
		if survivorIsSetter {
			next = state.Receiver
		}
		return Resolution{
			NextSetter: next,
			Message:    fmt.Sprintf("%s survived their last try", lastTryPlayer),
		}, nil
	}

	winner := state.Setter
	if survivorIsSetter {
		winner = state.Receiver
	}
	return Resolution{
		LetterTo: lastTryPlayer,
		GameOver: true,
		Winner:   winner,
		Message:  fmt.Sprintf("%s is out, %s wins", lastTryPlayer, winner),
	}, nil
}
