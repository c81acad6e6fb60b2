// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package name_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ndn-rtc/rtcsim/internal/name"
)

func TestAppendAndString(t *testing.T) {
	n := name.Parse("/conf/producer").AppendText("delta").AppendSeq(7)
	assert.Equal(t, "/conf/producer/delta/7", n.String())
	assert.Equal(t, 4, n.Len())
}

func TestAtNegativeIndex(t *testing.T) {
	n := name.Parse("/a/b/c").AppendSeq(1).AppendSeq(2)
	kv, ok := n.At(-2).SeqValue()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), kv)
	dv, ok := n.At(-1).SeqValue()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), dv)
}

func TestPrefix(t *testing.T) {
	n := name.Parse("/conf/producer/delta")
	assert.True(t, n.Prefix(1).Equal(name.Parse("/conf/producer")))
	assert.True(t, n.Prefix(0).Equal(n))
	assert.Equal(t, 0, n.Prefix(10).Len())
}

func TestIsPrefixOf(t *testing.T) {
	base := name.Parse("/conf/producer/delta/3/paired-key")
	full := base.AppendSeq(5).AppendSeq(0)
	assert.True(t, base.IsPrefixOf(full))
	assert.False(t, full.IsPrefixOf(base))
}

func TestEqualComponentKinds(t *testing.T) {
	assert.False(t, name.Text("1").Equal(name.Seq(1)))
	assert.True(t, name.Seq(1).Equal(name.Seq(1)))
}
