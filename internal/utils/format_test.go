package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "-12,000", Number(-12000))
}

func TestBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "1.0 KiB", Bytes(1024))
	assert.Equal(t, "1.5 MiB", Bytes(1536*1024))
	assert.Equal(t, "-1.0 KiB", Bytes(-1024))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123.45", Rate(123.45))
	assert.Equal(t, "12.34K", Rate(12340))
	assert.Equal(t, "12.34M", Rate(12340000))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "art/2dar..", Truncate("art/2dart/icon.dds", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
