package game

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, seats ...string) *Table {
	t.Helper()
	table, err := NewTable(seats, TableOptions{Rand: rand.New(rand.NewPCG(1, 2))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func decodeState(t *testing.T, table *Table) tableState {
	t.Helper()
	raw, err := table.SerializeGameState()
	require.NoError(t, err)
	var state tableState
	require.NoError(t, json.Unmarshal(raw, &state))
	return state
}

func act(name string) protocol.PlayerActionPayload {
	return protocol.PlayerActionPayload{Action: name}
}

func TestTableTurnOrder(t *testing.T) {
	table := newTestTable(t, "a", "b")

	_, err := table.ApplyPlayerAction("b", act(ActionRollDice))
	assert.Equal(t, apperrors.CodeEngine, apperrors.CodeOf(err))

	_, err = table.ApplyPlayerAction("a", act(ActionEndTurn))
	assert.Equal(t, apperrors.CodeEngine, apperrors.CodeOf(err), "must roll first")

	_, err = table.ApplyPlayerAction("a", act(ActionRollDice))
	require.NoError(t, err)
	_, err = table.ApplyPlayerAction("a", act(ActionRollDice))
	assert.Error(t, err)

	result, err := table.ApplyPlayerAction("a", act(ActionEndTurn))
	require.NoError(t, err)
	assert.Contains(t, string(result), `"player_id":"b"`)

	state := decodeState(t, table)
	assert.Equal(t, 1, state.CurrentPlayerIndex)
	assert.Equal(t, 1, state.TurnCount)
	assert.Equal(t, phaseRoll, state.TurnPhase)
}

func TestTableClaimUpdatesMap(t *testing.T) {
	table := newTestTable(t, "a", "b")

	_, err := table.ApplyPlayerAction("a", act(ActionRollDice))
	require.NoError(t, err)
	_, err = table.ApplyPlayerAction("a", act(ActionClaim))
	require.NoError(t, err)

	state := decodeState(t, table)
	assert.Len(t, state.Map.Owners, 1)
	assert.Less(t, state.Players[0].Money, defaultStartingMoney+passStartBonus)

	_, err = table.ApplyPlayerAction("a", act(ActionClaim))
	assert.Error(t, err, "tile already owned")
}

func TestTableUnknownAction(t *testing.T) {
	table := newTestTable(t, "a")
	_, err := table.ApplyPlayerAction("a", act("fly"))
	require.Error(t, err)
	assert.Equal(t, "Unknown action \"fly\"", apperrors.MetadataOf(err)["Reason"])
}

func TestTableEmitsPointEvents(t *testing.T) {
	table := newTestTable(t, "a", "b")

	_, err := table.ApplyPlayerAction("a", act(ActionRollDice))
	require.NoError(t, err)
	_, err = table.ApplyPlayerAction("a", act(ActionEndTurn))
	require.NoError(t, err)

	first := <-table.Events()
	second := <-table.Events()
	assert.Equal(t, protocol.TypeDiceResult, first.Type)
	assert.Equal(t, protocol.TypeTurnChange, second.Type)
}

func TestTableAISeatsPlayThemselves(t *testing.T) {
	table := newTestTable(t, "a", "ai_r_1", "ai_r_2")

	_, err := table.ApplyPlayerAction("a", act(ActionRollDice))
	require.NoError(t, err)
	_, err = table.ApplyPlayerAction("a", act(ActionEndTurn))
	require.NoError(t, err)

	state := decodeState(t, table)
	assert.Equal(t, 0, state.CurrentPlayerIndex, "turn returns to the human")
	assert.Equal(t, 3, state.TurnCount)
	assert.Equal(t, 1, state.RoundCount)
}

func TestTableCloseStopsActions(t *testing.T) {
	table, err := NewTable([]string{"a"}, TableOptions{})
	require.NoError(t, err)
	require.NoError(t, table.Close())
	require.NoError(t, table.Close())

	_, err = table.ApplyPlayerAction("a", act(ActionRollDice))
	assert.Equal(t, apperrors.CodeState, apperrors.CodeOf(err))
	_, open := <-table.Events()
	assert.False(t, open)
}

func TestFactoryBuildsTable(t *testing.T) {
	engine, err := NewTableFactory(TableOptions{})("room", []string{"a", "b"})
	require.NoError(t, err)
	_, ok := engine.(EventSource)
	assert.True(t, ok)

	_, err = NewTableFactory(TableOptions{})("room", nil)
	assert.Error(t, err)
}
