package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsOrdered(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestSessionTime(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	s := Session()
	require.True(t, strings.HasPrefix(s, SessionPrefix))

	ts, err := Time(s)
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Time("ses_nope")
	require.Error(t, err)
}
