// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

import (
	"io/fs"
)

// StatMode is a file mode as Python's `stat` module sees it (the `st_mode` of `os.stat()`).  The
// bit layout is the Linux one on every platform, which is also what ZIP and tar archives carry;
// Go's fs.FileMode uses a different layout, so convert with ModeFromGo.
type StatMode uint16

//nolint:deadcode,varcheck // the full table, for String()
const (
	ModeFmt StatMode = 0o17_0000 // mask for the type bits

	ModeFmtNamedPipe   StatMode = 0o01_0000
	ModeFmtCharDevice  StatMode = 0o02_0000
	ModeFmtDir         StatMode = 0o04_0000
	ModeFmtBlockDevice StatMode = 0o06_0000
	ModeFmtRegular     StatMode = 0o10_0000
	ModeFmtSymlink     StatMode = 0o12_0000
	ModeFmtSocket      StatMode = 0o14_0000
	ModeFmtWhiteout    StatMode = 0o16_0000 // BSD only

	ModePerm StatMode = 0o00_7777 // mask for the permission bits

	ModePermSetUID StatMode = 0o00_4000
	ModePermSetGID StatMode = 0o00_2000
	ModePermSticky StatMode = 0o00_1000
	ModePermUsrX   StatMode = 0o00_0100
)

var goTypes = []struct {
	gm fs.FileMode
	pm StatMode
}{
	{0, ModeFmtRegular},
	{fs.ModeDir, ModeFmtDir},
	{fs.ModeSymlink, ModeFmtSymlink},
	{fs.ModeNamedPipe, ModeFmtNamedPipe},
	{fs.ModeSocket, ModeFmtSocket},
	{fs.ModeDevice, ModeFmtBlockDevice},
	{fs.ModeDevice | fs.ModeCharDevice, ModeFmtCharDevice},
}

// ModeFromGo translates an fs.FileMode to a StatMode.  Go mode types that have no Python
// equivalent (such as fs.ModeIrregular) end up with no type bits.
func ModeFromGo(gm fs.FileMode) StatMode {
	pm := StatMode(gm.Perm())
	if gm&fs.ModeSetuid != 0 {
		pm |= ModePermSetUID
	}
	if gm&fs.ModeSetgid != 0 {
		pm |= ModePermSetGID
	}
	if gm&fs.ModeSticky != 0 {
		pm |= ModePermSticky
	}
	for _, typ := range goTypes {
		if gm&fs.ModeType == typ.gm {
			pm |= typ.pm
			break
		}
	}
	return pm
}

// NormalizePermissions discards all permission information except the owner-execute bit, so
// that archives built on machines with different umasks are identical.  The result is 0o644 or
// 0o755 (the type bits are kept, setuid/setgid/sticky are not); the owner-execute bit of the
// input decides which.
func (pm StatMode) NormalizePermissions() StatMode {
	ret := (pm | 0o644) &^ 0o7133 // rw-r--r--
	if pm&ModePermUsrX != 0 {
		ret |= 0o111 // rwxr-xr-x
	}
	return ret
}

func (pm StatMode) IsDir() bool {
	return pm&ModeFmt == ModeFmtDir
}

func (pm StatMode) IsRegular() bool {
	return pm&ModeFmt == ModeFmtRegular
}

// String renders the mode the way `ls -l` and Python's `stat.filemode()` do, for example
// "-rwxr-xr-x".  Types that Linux doesn't have (such as BSD whiteouts) are '?'.
func (pm StatMode) String() string {
	// Indexed by the type bits; see the ModeFmt constants.
	const types = "?pc?d?b?-?l?s???"
	bit := func(shift uint, chars string) byte {
		return chars[(pm>>shift)&1]
	}
	special := func(xShift, sShift uint, chars string) byte {
		return chars[((pm>>xShift)&1)|((pm>>sShift)&1)<<1]
	}
	return string([]byte{
		types[pm>>12],
		bit(8, "-r"), bit(7, "-w"), special(6, 11, "-xSs"),
		bit(5, "-r"), bit(4, "-w"), special(3, 10, "-xSs"),
		bit(2, "-r"), bit(1, "-w"), special(0, 9, "-xTt"),
	})
}
