package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationCoordinator(t *testing.T) {
	c := NewPaginationCoordinator()

	plan := c.PlanFetch("cats")
	assert.Equal(t, FetchPlan{Term: "cats"}, plan)
	assert.False(t, plan.Continuation())
	assert.False(t, c.HasMore("cats"))

	c.RecordResult("cats", "p2")
	assert.True(t, c.HasMore("cats"))
	plan = c.PlanFetch("cats")
	assert.Equal(t, "p2", plan.Cursor)
	assert.True(t, plan.Continuation())

	// switching terms discards the old cursor
	assert.Equal(t, FetchPlan{Term: "dogs"}, c.PlanFetch("dogs"))
	assert.False(t, c.HasMore("cats"))
	assert.Equal(t, FetchPlan{Term: "cats"}, c.PlanFetch("cats"))
}

func TestPaginationCoordinator_EndOfResults(t *testing.T) {
	c := NewPaginationCoordinator()
	c.RecordResult("cats", "p2")
	c.RecordResult("cats", "")

	assert.False(t, c.HasMore("cats"))
	assert.Equal(t, FetchPlan{Term: "cats"}, c.PlanFetch("cats"))
}

func TestPaginationCoordinator_Reset(t *testing.T) {
	c := NewPaginationCoordinator()
	c.RecordResult("cats", "p2")
	c.Reset()

	assert.False(t, c.HasMore("cats"))
	assert.Equal(t, FetchPlan{Term: "cats"}, c.PlanFetch("cats"))
}
