// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package python

// DOSAttribute is the low byte of a ZIP entry's external attributes, the "MS-DOS directory
// attribute byte" of https://www.pkware.com/appnote.
type DOSAttribute uint8

const (
	DOSReadOnly  DOSAttribute = 0x01
	DOSHidden    DOSAttribute = 0x02
	DOSSystem    DOSAttribute = 0x04
	DOSDirectory DOSAttribute = 0x10
	DOSArchive   DOSAttribute = 0x20
)

// ZIPExternalAttributes splits the 32-bit "external file attributes" of a ZIP entry the way
// Python's `zipfile` (and therefore pip) reads them: the upper 16 bits are a Unix st_mode and the
// low byte is DOS attributes, whatever the "version made by" field claims.
type ZIPExternalAttributes struct {
	UNIX   StatMode
	Unused uint8
	MSDOS  DOSAttribute
}

func (ea ZIPExternalAttributes) Raw() uint32 {
	return uint32(ea.UNIX)<<16 | uint32(ea.Unused)<<8 | uint32(ea.MSDOS)
}

func ParseZIPExternalAttributes(raw uint32) ZIPExternalAttributes {
	var ea ZIPExternalAttributes
	ea.UNIX = StatMode(raw >> 16)
	ea.Unused = uint8(raw >> 8)
	ea.MSDOS = DOSAttribute(raw)
	return ea
}

// ZIPCreatorUNIX is the "version made by" value that marks the upper half of the external
// attributes as a Unix mode.
const ZIPCreatorUNIX = 3 << 8

// ExternalAttributesFor returns the attributes `zipfile.ZipInfo.from_file` would write for a file
// with the given mode.
func ExternalAttributesFor(mode StatMode) ZIPExternalAttributes {
	ea := ZIPExternalAttributes{UNIX: mode}
	if mode.IsDir() {
		ea.MSDOS |= DOSDirectory
	}
	return ea
}
