package webhookclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_ShouldProcess(t *testing.T) {
	assert.True(t, OutcomeClaimedNew.ShouldProcess())
	assert.True(t, OutcomeStaleStolen.ShouldProcess())
	assert.False(t, OutcomeAlreadyCompleted.ShouldProcess())
	assert.False(t, OutcomeInProgressFresh.ShouldProcess())
}

func TestOutcome_HTTPStatus(t *testing.T) {
	assert.Equal(t, 200, OutcomeAlreadyCompleted.HTTPStatus())
	assert.Equal(t, 202, OutcomeClaimedNew.HTTPStatus())
	assert.Equal(t, 202, OutcomeInProgressFresh.HTTPStatus())
	assert.Equal(t, 202, OutcomeStaleStolen.HTTPStatus())
}
