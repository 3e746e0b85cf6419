// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"math"
	"math/rand"
	"reflect"
	"strconv"
	"testing/quick"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// versionGen produces random, valid versions for property tests.
type versionGen struct {
	*rand.Rand
	size int
}

func (g versionGen) maybe() bool { return g.Intn(2) == 1 }
func (g versionGen) seg() int    { return g.Intn(3000) }

// count returns a length in [1, min(max(size,1), 10)], and spends it from the size budget.
func (g *versionGen) count() int {
	limit := g.size
	switch {
	case limit < 1:
		limit = 1
	case limit > 10:
		limit = 10
	}
	n := 1 + g.Intn(limit)
	g.size -= n
	return n
}

func (g *versionGen) localSegment() intstr.IntOrString {
	switch g.Intn(8) {
	case 0:
		// too big for an int32
		return intstr.FromString(strconv.FormatInt(math.MaxInt32+1+g.Int63n(1e12), 10))
	case 1, 2, 3:
		return intstr.FromInt(g.seg())
	}
	const (
		lower  = "abcdefghijklmnopqrstuvwxyz"
		alnums = lower + "0123456789"
	)
	buf := make([]byte, g.count())
	buf[0] = lower[g.Intn(len(lower))]
	for i := 1; i < len(buf); i++ {
		buf[i] = alnums[g.Intn(len(alnums))]
	}
	return intstr.FromString(string(buf))
}

func (g *versionGen) public() PublicVersion {
	var ver PublicVersion
	if g.maybe() {
		ver.Epoch = g.seg()
	}
	ver.Release = make([]int, g.count())
	for i := range ver.Release {
		ver.Release[i] = g.seg()
	}
	if g.maybe() {
		ver.Pre = &PreRelease{L: [...]string{"a", "b", "rc"}[g.Intn(3)], N: g.seg()}
	}
	if g.maybe() {
		n := g.seg()
		ver.Post = &n
	}
	if g.maybe() {
		n := g.seg()
		ver.Dev = &n
	}
	return ver
}

func (g *versionGen) local() LocalVersion {
	var ver LocalVersion
	if g.maybe() {
		ver.Local = make([]intstr.IntOrString, g.count())
		for i := range ver.Local {
			ver.Local[i] = g.localSegment()
		}
	}
	ver.PublicVersion = g.public()
	return ver
}

// Generate implements testing/quick.Generator.
func (PublicVersion) Generate(rand *rand.Rand, size int) reflect.Value {
	g := &versionGen{Rand: rand, size: size}
	return reflect.ValueOf(g.public())
}

// Generate implements testing/quick.Generator.
func (LocalVersion) Generate(rand *rand.Rand, size int) reflect.Value {
	g := &versionGen{Rand: rand, size: size}
	return reflect.ValueOf(g.local())
}

var (
	_ quick.Generator = PublicVersion{}
	_ quick.Generator = LocalVersion{}
)
