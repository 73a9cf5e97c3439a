package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFrameConstruction(t *testing.T) {
	f, err := SimpleString("OK")
	require.NoError(t, err)
	assert.Equal(t, KindSimpleString, f.Kind())

	_, err = SimpleString("not\ra line")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = SimpleError("not\na line")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = BigNumber("3492890328409238509324850943850943825024385")
	assert.NoError(t, err)

	// bulk payloads are length prefixed, CR LF is fine inside
	b := BulkString("hello\r\nworld")
	payload, ok := b.Bulk()
	require.True(t, ok)
	assert.Equal(t, "hello\r\nworld", payload)
}

func TestFrameAccessors(t *testing.T) {
	n := Integer(-42)
	v, ok := n.Int()
	require.True(t, ok)
	assert.Equal(t, int64(-42), v)

	_, ok = n.Bulk()
	assert.False(t, ok)

	_, err := n.Array()
	assert.ErrorIs(t, err, ErrSyntax)

	arr := Array(Integer(1), BulkString("two"))
	children, err := arr.Array()
	require.NoError(t, err)
	assert.Len(t, children, 2)

	name, ok := children[1].BulkString()
	require.True(t, ok)
	assert.Equal(t, "two", name)

	// bulk errors are not command arguments
	_, ok = BulkError("oops").BulkString()
	assert.False(t, ok)
}

func TestFrameEqual(t *testing.T) {
	ok, _ := SimpleString("OK")
	a := Array(Integer(1), Array(ok, Null()), Boolean(true))
	b := Array(Integer(1), Array(ok, Null()), Boolean(true))
	assert.True(t, a.Equal(b))

	c := Array(Integer(1), Array(ok, Null()), Boolean(false))
	assert.False(t, a.Equal(c))

	assert.False(t, a.Equal(Integer(1)))
	assert.False(t, Array().Equal(Array(Null())))
}
