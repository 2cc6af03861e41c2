package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/ent/phaseartifact"
	"github.com/sdlcloop/controller/ent/plantask"
)

func TestRequiredPlanApprovalStatus(t *testing.T) {
	assert.Equal(t, phaseartifact.StatusApproved, RequiredPlanApprovalStatus("human_required"))
	assert.Equal(t, phaseartifact.StatusAccepted, RequiredPlanApprovalStatus("auto"))
	assert.Equal(t, phaseartifact.StatusAccepted, RequiredPlanApprovalStatus(""))
}

func TestIsIncomplete(t *testing.T) {
	assert.True(t, isIncomplete(plantask.StatusTodo))
	assert.True(t, isIncomplete(plantask.StatusInProgress))
	assert.True(t, isIncomplete(plantask.StatusBlocked))
	assert.False(t, isIncomplete(plantask.StatusDone))
	assert.False(t, isIncomplete(plantask.StatusSkipped))
}
