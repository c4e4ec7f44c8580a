package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvester-dev/harvester/internal/entity"
	"github.com/harvester-dev/harvester/internal/turn"
)

func mkTurn(n int, narrative, text string, ts time.Time) turn.Turn {
	return turn.Turn{
		ID:            "t",
		Number:        n,
		Prompt:        text,
		ToolNarrative: narrative,
		Timestamp:     ts,
	}
}

func specEntity(name string) entity.Entity {
	return entity.Entity{
		Type:         entity.TypeSpec,
		Name:         name,
		DisplayName:  name,
		Directory:    "specs/" + name,
		PathPatterns: []string{"specs/" + name + "/"},
		TextPatterns: []string{name},
	}
}

func TestClassifyTurns_GroupsContiguousSameEntity(t *testing.T) {
	e := specEntity("alpha")
	base := time.Now()
	turns := []turn.Turn{
		mkTurn(1, "specs/alpha/design.md", "", base),
		mkTurn(2, "specs/alpha/impl.go", "", base.Add(time.Minute)),
		mkTurn(3, "unrelated narrative", "", base.Add(2*time.Minute)),
	}

	segs := New().ClassifyTurns(turns, []entity.Entity{e})

	// Turns 1-2 group into one alpha run; the trailing unclassified turn 3
	// follows a classified segment, so absorption appends it to that run.
	require.Len(t, segs, 1)
	require.NotNil(t, segs[0].Entity)
	assert.Equal(t, e.ID(), segs[0].Entity.ID())
	assert.Len(t, segs[0].Turns, 3)
	assert.Equal(t, 3, segs[0].Turns[2].Number)
	assert.NotEmpty(t, segs[0].ID)
	assert.Equal(t, 1, segs[0].Turns[0].Number)
}

func TestClassifyTurns_AbsorbsNoneBetweenSameEntityRuns(t *testing.T) {
	e := specEntity("alpha")
	base := time.Now()
	turns := []turn.Turn{
		mkTurn(1, "specs/alpha/a.md", "", base),
		mkTurn(2, "no match here", "", base.Add(time.Minute)),
		mkTurn(3, "specs/alpha/b.md", "", base.Add(2*time.Minute)),
	}

	segs := New().ClassifyTurns(turns, []entity.Entity{e})

	// The middle None turn has a classified segment before it, so pass 1
	// appends it there; the two alpha segments are then adjacent and merge,
	// so the whole run ends up in a single segment.
	require.Len(t, segs, 1)
	assert.Equal(t, e.ID(), segs[0].Entity.ID())
	assert.Len(t, segs[0].Turns, 3)
}

func TestClassifyTurns_AllNoneCollapsesToSingleSegment(t *testing.T) {
	turns := []turn.Turn{
		mkTurn(1, "", "nothing interesting", time.Now()),
		mkTurn(2, "", "still nothing", time.Now()),
	}
	segs := New().ClassifyTurns(turns, []entity.Entity{specEntity("alpha")})
	require.Len(t, segs, 1)
	assert.Nil(t, segs[0].Entity)
	assert.Len(t, segs[0].Turns, 2)
}

func TestClassifyTurns_NoEntitiesReturnsSingleUnclassifiedSegment(t *testing.T) {
	turns := []turn.Turn{mkTurn(1, "", "x", time.Now())}
	segs := New().ClassifyTurns(turns, nil)
	require.Len(t, segs, 1)
	assert.Nil(t, segs[0].Entity)
	assert.NotEmpty(t, segs[0].ID)
}

func TestClassifyTurns_EmptyTurnsReturnsNil(t *testing.T) {
	segs := New().ClassifyTurns(nil, []entity.Entity{specEntity("alpha")})
	assert.Nil(t, segs)
}
