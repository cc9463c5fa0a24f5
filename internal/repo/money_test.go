package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 29.97, roundMoney(29.969999999999999))
	assert.Equal(t, 10.00, roundMoney(10.0))
	assert.Equal(t, 0.00, roundMoney(0))
	assert.Equal(t, 2.35, roundMoney(2.345000001))

	// Half rounds away from zero in both directions.
	assert.Equal(t, 2.68, roundMoney(2.675000001))
	assert.Equal(t, -2.68, roundMoney(-2.675000001))
}
