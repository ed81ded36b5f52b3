package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte(`["file"-`), PrefixEnd([]byte(`["file",`)))
	assert.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, PrefixEnd(nil))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}

func TestBatch(t *testing.T) {
	var b Batch
	b.Put([]byte("a"), []byte("1"))
	b.Delete([]byte("b"))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []Op{
		{Kind: OpPut, Key: []byte("a"), Value: []byte("1")},
		{Kind: OpDelete, Key: []byte("b")},
	}, b.Ops())

	b.Reset()
	assert.Equal(t, 0, b.Len())
}
