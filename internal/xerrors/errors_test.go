package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := New(NotFound, "no root qdisc")
	assert.Equal(t, "NotFound: no root qdisc", e.Error())

	wrapped := Wrap(IoError, "netlink exchange", errors.New("connection reset"))
	assert.Equal(t, "IoError: netlink exchange: connection reset", wrapped.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(ProtocolError, "bad message", cause)
	assert.ErrorIs(t, e, cause)
}

func TestIsComparesByCodeNotMessage(t *testing.T) {
	a := New(AlreadyRunning, "key one")
	b := New(AlreadyRunning, "key two")
	assert.ErrorIs(t, a, b, "errors.Is must compare Code, ignoring Message")

	c := New(BusyOrConflict, "key one")
	assert.False(t, errors.Is(a, c))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, UnknownInterface, CodeOf(New(UnknownInterface, "")))
	assert.Equal(t, Code(0), CodeOf(nil))
	assert.Equal(t, Code(0), CodeOf(errors.New("plain")))
}

func TestIsHelper(t *testing.T) {
	err := New(InterfaceGone, "veth0")
	assert.True(t, Is(err, InterfaceGone))
	assert.False(t, Is(err, NotFound))
}

func TestCodeStringIsStable(t *testing.T) {
	cases := map[Code]string{
		PermissionDenied:  "PermissionDenied",
		UnknownInterface:  "UnknownInterface",
		InterfaceGone:     "InterfaceGone",
		InvalidScenario:   "InvalidScenario",
		AlreadyRunning:    "AlreadyRunning",
		BusyOrConflict:    "BusyOrConflict",
		ProtocolError:     "ProtocolError",
		IoError:           "IoError",
		NotFound:          "NotFound",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}
