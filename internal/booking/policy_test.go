package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_BeforeDeadlineIsOnTime(t *testing.T) {
	sess := testSession(1, 10, 5)
	now := sess.CancelDeadline().Add(-time.Minute)
	assert.Equal(t, OnTime, Classify(sess, now))
}

func TestClassify_ExactlyAtDeadlineIsOnTime(t *testing.T) {
	sess := testSession(1, 10, 5)
	assert.Equal(t, OnTime, Classify(sess, sess.CancelDeadline()))
}

func TestClassify_AfterDeadlineIsLate(t *testing.T) {
	sess := testSession(1, 10, 5)
	now := sess.CancelDeadline().Add(time.Second)
	assert.Equal(t, Late, Classify(sess, now))
}

func TestClassify_ZeroDeadlineHours(t *testing.T) {
	sess := testSession(1, 10, 5)
	sess.CancelDeadlineHours = 0
	// Deadline collapses onto the start time: any cancel before start is on
	// time, anything after is late.
	assert.Equal(t, OnTime, Classify(sess, sess.StartsAt))
	assert.Equal(t, Late, Classify(sess, sess.StartsAt.Add(time.Second)))
}

func TestFeeFor(t *testing.T) {
	sess := testSession(1, 10, 5)
	assert.Equal(t, uint32(0), FeeFor(sess, OnTime))
	assert.Equal(t, sess.LateFeeCents, FeeFor(sess, Late))
}
