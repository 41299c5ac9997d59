package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncident_CurrentCheckpoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := &Incident{
		FollowUpScheduled: true,
		FollowUpTimes: []Checkpoint{
			{Timestamp: now.Add(30 * time.Minute), IntervalMinutes: 30},
			{Timestamp: now.Add(2 * time.Hour), IntervalMinutes: 120},
		},
		NextFollowUpIndex: 1,
	}

	cp := inc.CurrentCheckpoint()
	assert.NotNil(t, cp)
	assert.Equal(t, 120, cp.IntervalMinutes)

	inc.FollowUpCompleted = true
	assert.Nil(t, inc.CurrentCheckpoint())

	inc.FollowUpCompleted = false
	inc.NextFollowUpIndex = 2
	assert.False(t, inc.HasOpenCheckpoint())
	assert.Nil(t, inc.CurrentCheckpoint())
}

func TestIncident_CloneDoesNotAlias(t *testing.T) {
	due := time.Now()
	desc := "2 hr check"
	inc := &Incident{
		ID:                      "inc-1",
		FollowUpTimes:           []Checkpoint{{IntervalMinutes: 30}},
		FollowUpResponses:       []Response{{Effectiveness: EffectivenessImproved}},
		NextFollowUpDue:         &due,
		NextFollowUpDescription: &desc,
	}

	c := inc.Clone()
	c.FollowUpTimes[0].IntervalMinutes = 999
	c.FollowUpResponses[0].Effectiveness = EffectivenessWorse
	*c.NextFollowUpDescription = "changed"

	assert.Equal(t, 30, inc.FollowUpTimes[0].IntervalMinutes)
	assert.Equal(t, EffectivenessImproved, inc.FollowUpResponses[0].Effectiveness)
	assert.Equal(t, "2 hr check", *inc.NextFollowUpDescription)
}

func TestEffectivenessForQuickCode(t *testing.T) {
	v, ok := EffectivenessForQuickCode("effective")
	assert.True(t, ok)
	assert.Equal(t, EffectivenessResolved, v)

	v, ok = EffectivenessForQuickCode("somewhat")
	assert.True(t, ok)
	assert.Equal(t, EffectivenessImproved, v)

	v, ok = EffectivenessForQuickCode("not-effective")
	assert.True(t, ok)
	assert.Equal(t, EffectivenessNoChange, v)

	_, ok = EffectivenessForQuickCode("meh")
	assert.False(t, ok)

	assert.True(t, IsValidEffectiveness("worse"))
	assert.False(t, IsValidEffectiveness("effective"))
}
