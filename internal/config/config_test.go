package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "orderd", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "pending", cfg.OrderEventStatus)
	assert.Nil(t, cfg.RefundFromStatuses)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ORDER_EVENT_STATUS", "paid")
	t.Setenv("REFUND_FROM_STATUSES", "paid, delivered")

	cfg := Load()

	assert.Equal(t, "paid", cfg.OrderEventStatus)
	assert.Equal(t, []string{"paid", "delivered"}, cfg.RefundFromStatuses)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b "))
}
