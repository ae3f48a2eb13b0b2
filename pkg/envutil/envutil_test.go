package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("MS_TEST_STR", "value")
	assert.Equal(t, "value", Get("MS_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", Get("MS_TEST_UNSET", "fallback"))
}

func TestGetInt(t *testing.T) {
	t.Setenv("MS_TEST_INT", "42")
	assert.Equal(t, 42, GetInt("MS_TEST_INT", 7))

	t.Setenv("MS_TEST_BAD_INT", "nope")
	assert.Equal(t, 7, GetInt("MS_TEST_BAD_INT", 7))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("MS_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, GetDuration("MS_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("MS_TEST_UNSET", time.Minute))
}

func TestGetDurationOrDays(t *testing.T) {
	t.Setenv("MS_TEST_TTL", "48h")
	assert.Equal(t, 48*time.Hour, GetDurationOrDays("MS_TEST_TTL", time.Hour))

	t.Setenv("MS_TEST_TTL_DAYS", "30")
	assert.Equal(t, 30*24*time.Hour, GetDurationOrDays("MS_TEST_TTL_DAYS", time.Hour))

	t.Setenv("MS_TEST_TTL_BAD", "soon")
	assert.Equal(t, time.Hour, GetDurationOrDays("MS_TEST_TTL_BAD", time.Hour))
}
