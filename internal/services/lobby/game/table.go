package game

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
)

const (
	// Actions understood by the table engine.
	ActionRollDice = "roll_dice"
	ActionEndTurn  = "end_turn"
	ActionClaim    = "claim"

	phaseRoll = "roll"
	phaseAct  = "act"

	defaultBoardSize     = 40
	defaultStartingMoney = 1500
	passStartBonus       = 200
	eventBuffer          = 64
)

type tablePlayer struct {
	PlayerID string `json:"player_id"`
	Position int    `json:"position"`
	Money    int    `json:"money"`
	IsAI     bool   `json:"is_ai"`
}

type tableMap struct {
	Size   int               `json:"size"`
	Owners map[string]string `json:"owners"`
}

type tableState struct {
	Players            []*tablePlayer `json:"players"`
	Map                tableMap       `json:"map"`
	CurrentPlayerIndex int            `json:"current_player_index"`
	TurnPhase          string         `json:"turn_phase"`
	GameStatus         string         `json:"game_status"`
	TurnCount          int            `json:"turn_count"`
	RoundCount         int            `json:"round_count"`
}

type diceResult struct {
	PlayerID string `json:"player_id"`
	Dice     [2]int `json:"dice"`
	Total    int    `json:"total"`
	Position int    `json:"position"`
}

type turnChange struct {
	PlayerID  string `json:"player_id"`
	TurnCount int    `json:"turn_count"`
	Round     int    `json:"round_count"`
}

// TableOptions tunes a table engine.
type TableOptions struct {
	BoardSize     int
	StartingMoney int
	Rand          *rand.Rand
}

// Table is a minimal turn-based engine: players roll two dice around a loop
// board, claim free tiles and pass the turn. Seats whose id starts with "ai_"
// play automatically.
type Table struct {
	mu     sync.Mutex
	state  tableState
	rng    *rand.Rand
	events chan Event
	closed bool
}

// NewTableFactory returns a Factory building tables with opts.
func NewTableFactory(opts TableOptions) Factory {
	return func(_ string, seats []string) (Engine, error) {
		return NewTable(seats, opts)
	}
}

// NewTable seats players in the given order.
func NewTable(seats []string, opts TableOptions) (*Table, error) {
	if len(seats) == 0 {
		return nil, apperrors.New(apperrors.CodeState, "table needs at least one seat")
	}
	if opts.BoardSize <= 0 {
		opts.BoardSize = defaultBoardSize
	}
	if opts.StartingMoney <= 0 {
		opts.StartingMoney = defaultStartingMoney
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	players := make([]*tablePlayer, 0, len(seats))
	for _, seat := range seats {
		players = append(players, &tablePlayer{
			PlayerID: seat,
			Money:    opts.StartingMoney,
			IsAI:     strings.HasPrefix(seat, "ai_"),
		})
	}
	t := &Table{
		state: tableState{
			Players:    players,
			Map:        tableMap{Size: opts.BoardSize, Owners: map[string]string{}},
			TurnPhase:  phaseRoll,
			GameStatus: string(protocol.RoomPlaying),
		},
		rng:    rng,
		events: make(chan Event, eventBuffer),
	}
	t.mu.Lock()
	t.playAITurnsLocked()
	t.mu.Unlock()
	return t, nil
}

// SerializeGameState implements Engine.
func (t *Table) SerializeGameState() (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(t.state)
	if err != nil {
		return nil, fmt.Errorf("encode table state: %w", err)
	}
	return data, nil
}

// Events implements EventSource.
func (t *Table) Events() <-chan Event {
	return t.events
}

// Close stops event delivery.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

// ApplyPlayerAction implements Engine.
func (t *Table) ApplyPlayerAction(playerID string, action protocol.PlayerActionPayload) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, apperrors.New(apperrors.CodeState, "game is over")
	}
	current := t.state.Players[t.state.CurrentPlayerIndex]
	if current.PlayerID != playerID {
		return nil, rejected("Not your turn")
	}

	switch action.Action {
	case ActionRollDice:
		if t.state.TurnPhase != phaseRoll {
			return nil, rejected("Already rolled this turn")
		}
		return json.Marshal(t.rollLocked(current))
	case ActionClaim:
		if t.state.TurnPhase != phaseAct {
			return nil, rejected("Roll before claiming")
		}
		tile := strconv.Itoa(current.Position)
		if owner, taken := t.state.Map.Owners[tile]; taken {
			return nil, rejected(fmt.Sprintf("Tile already owned by %s", owner))
		}
		price := t.tilePrice(current.Position)
		if current.Money < price {
			return nil, rejected("Not enough money")
		}
		current.Money -= price
		t.state.Map.Owners[tile] = current.PlayerID
		return json.Marshal(map[string]any{"tile": current.Position, "price": price})
	case ActionEndTurn:
		if t.state.TurnPhase != phaseAct {
			return nil, rejected("Roll before ending the turn")
		}
		change := t.advanceLocked()
		t.playAITurnsLocked()
		return json.Marshal(change)
	default:
		return nil, rejected(fmt.Sprintf("Unknown action %q", action.Action))
	}
}

func rejected(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeEngine, reason, map[string]string{"Reason": reason})
}

func (t *Table) tilePrice(position int) int {
	return 100 + 20*(position%10)
}

func (t *Table) rollLocked(p *tablePlayer) diceResult {
	dice := [2]int{t.rng.IntN(6) + 1, t.rng.IntN(6) + 1}
	total := dice[0] + dice[1]
	next := p.Position + total
	if next >= t.state.Map.Size {
		p.Money += passStartBonus
	}
	p.Position = next % t.state.Map.Size
	t.state.TurnPhase = phaseAct

	result := diceResult{PlayerID: p.PlayerID, Dice: dice, Total: total, Position: p.Position}
	t.emitLocked(protocol.TypeDiceResult, result)
	return result
}

func (t *Table) advanceLocked() turnChange {
	t.state.CurrentPlayerIndex = (t.state.CurrentPlayerIndex + 1) % len(t.state.Players)
	t.state.TurnCount++
	if t.state.CurrentPlayerIndex == 0 {
		t.state.RoundCount++
	}
	t.state.TurnPhase = phaseRoll

	change := turnChange{
		PlayerID:  t.state.Players[t.state.CurrentPlayerIndex].PlayerID,
		TurnCount: t.state.TurnCount,
		Round:     t.state.RoundCount,
	}
	t.emitLocked(protocol.TypeTurnChange, change)
	return change
}

// playAITurnsLocked rolls and passes for consecutive AI seats. It stops after
// one lap so an all-AI table cannot spin.
func (t *Table) playAITurnsLocked() {
	for range t.state.Players {
		current := t.state.Players[t.state.CurrentPlayerIndex]
		if !current.IsAI {
			return
		}
		t.rollLocked(current)
		t.advanceLocked()
	}
}

// emitLocked publishes without blocking; a full buffer drops the event since
// the periodic sync repairs any missed state.
func (t *Table) emitLocked(kind protocol.MessageType, payload any) {
	if t.closed {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case t.events <- Event{Type: kind, Data: data}:
	default:
	}
}
