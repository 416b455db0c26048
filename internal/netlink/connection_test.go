package netlink

import (
	"errors"
	"os"
	"syscall"
	"testing"

	vnl "github.com/vishvananda/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

func TestPctToFixedRoundTripsEndpoints(t *testing.T) {
	assert.Equal(t, uint32(0), pctToFixed(0))
	assert.Equal(t, uint32(4294967295), pctToFixed(100))
	assert.InDelta(t, float64(2147483647), float64(pctToFixed(50)), 2)
}

func TestMsToUsConvertsMillisecondsToMicroseconds(t *testing.T) {
	assert.Equal(t, uint32(100000), msToUs(100))
	assert.Equal(t, uint32(0), msToUs(0))
}

func TestBuildNetemAppliesDesugarAndConversions(t *testing.T) {
	cfg := netem.Config{
		Loss:    &netem.Loss{Percentage: 50, Correlation: 10},
		Reorder: &netem.Reorder{Percentage: 10, Gap: 5},
		Rate:    &netem.Rate{RateKbps: 100},
	}

	q := buildNetem(7, cfg)

	require.NotNil(t, q)
	assert.Equal(t, vnl.HANDLE_ROOT, q.Attrs().Parent)
	assert.Equal(t, 7, q.Attrs().LinkIndex)

	// reorder present with no explicit delay must desugar to a 1ms latency.
	assert.Equal(t, msToUs(1), q.Latency)
	assert.Equal(t, pctToFixed(10), q.ReorderProb)
	assert.Equal(t, uint32(5), q.Gap)
	assert.Equal(t, pctToFixed(50), q.Loss)
	assert.Equal(t, uint32(12500), q.Rate)
}

func TestBuildNetemLeavesUnsetFeaturesZero(t *testing.T) {
	q := buildNetem(1, netem.Config{})
	assert.Equal(t, uint32(0), q.Latency)
	assert.Equal(t, uint32(0), q.Loss)
	assert.Equal(t, uint32(0), q.Rate)
}

func TestClassifyErrMapsKnownCauses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code xerrors.Code
	}{
		{"permission", os.ErrPermission, xerrors.PermissionDenied},
		{"exist", syscall.EEXIST, xerrors.BusyOrConflict},
		{"busy", syscall.EBUSY, xerrors.BusyOrConflict},
		{"not-exist", os.ErrNotExist, xerrors.NotFound},
		{"enodev", syscall.ENODEV, xerrors.NotFound},
		{"enoent", syscall.ENOENT, xerrors.NotFound},
		{"dump-interrupted", vnl.ErrDumpInterrupted, xerrors.ProtocolError},
		{"other", errors.New("weird"), xerrors.IoError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyErr(c.err, "op")
			assert.Equal(t, c.code, xerrors.CodeOf(got))
		})
	}
}

func TestClassifyErrNilIsNil(t *testing.T) {
	assert.Nil(t, classifyErr(nil, "op"))
}
