// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements PEP 440 -- Version Identification and Dependency Specification.
//
// https://www.python.org/dev/peps/pep-0440/
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// InvalidVersionError is returned (wrapped) when a string cannot be interpreted as a PEP 440
// version, even by the permissive Appendix B grammar.
type InvalidVersionError struct {
	Version string
	Reason  string
}

func (e *InvalidVersionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid version: %q", e.Version)
	}
	return fmt.Sprintf("invalid version: %q: %s", e.Version, e.Reason)
}

// Version is a full version identifier, including any local version label.
type Version = LocalVersion

// PublicVersion is the part of a version identifier that may be published to an index.
type PublicVersion struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
}

// PreRelease is the "{a|b|rc}N" pre-release segment; L is always one of the canonical spellings.
type PreRelease struct {
	L string
	N int
}

// LocalVersion is a PublicVersion plus a local version label.  Numeric label segments that
// don't fit in an IntOrString's int32 are stored as digit strings (with no leading zeros), and
// still compare numerically.
type LocalVersion struct {
	PublicVersion
	Local []intstr.IntOrString
}

// reVersion is the regular expression from PEP 440 Appendix B, with the verbose-mode whitespace
// and comments stripped.
var reVersion = regexp.MustCompile(`(?i)^\s*` + regexp.MustCompile(`(?:\s+|#.*)`).ReplaceAllString(`
		v?
		(?:
		    (?:(?P<epoch>[0-9]+)!)?                           # epoch
		    (?P<release>[0-9]+(?:\.[0-9]+)*)                  # release segment
		    (?P<pre>                                          # pre-release
		        [-_\.]?
		        (?P<pre_l>(a|b|c|rc|alpha|beta|pre|preview))
		        [-_\.]?
		        (?P<pre_n>[0-9]+)?
		    )?
		    (?P<post>                                         # post release
		        (?:-(?P<post_n1>[0-9]+))
		        |
		        (?:
		            [-_\.]?
		            (?P<post_l>post|rev|r)
		            [-_\.]?
		            (?P<post_n2>[0-9]+)?
		        )
		    )?
		    (?P<dev>                                          # dev release
		        [-_\.]?
		        (?P<dev_l>dev)
		        [-_\.]?
		        (?P<dev_n>[0-9]+)?
		    )?
		)
		(?:\+(?P<local>[a-z0-9]+(?:[-_\.][a-z0-9]+)*))?       # local version
	`, ``) + `\s*$`)

// spellings maps every accepted spelling of a pre/post/dev label to its canonical form.
var spellings = map[string]string{
	"a":       "a",
	"alpha":   "a",
	"b":       "b",
	"beta":    "b",
	"rc":      "rc",
	"c":       "rc",
	"pre":     "rc",
	"preview": "rc",
	"post":    "post",
	"rev":     "post",
	"r":       "post",
	"":        "post", // the "-N" implicit post-release
	"dev":     "dev",
}

// ParseVersion parses a version string using the permissive grammar, so that (for example) both
// "1.0alpha1" and "1.0a1" are accepted.  The returned Version's String method gives the canonical
// spelling.  Errors wrap *InvalidVersionError.
//
// The epoch, release, pre, post, and dev numbers are Go ints; a version with a number too large
// for an int is rejected as invalid even though PEP 440 sets no limit.  Local labels have no
// such limit.
func ParseVersion(str string) (*Version, error) {
	ver, err := parseVersion(str)
	if err != nil {
		return nil, fmt.Errorf("pep440.ParseVersion: %w", err)
	}
	return ver, nil
}

// Normalize returns the canonical spelling of a version string.  Normalize is idempotent.
func Normalize(str string) (string, error) {
	ver, err := ParseVersion(str)
	if err != nil {
		return "", err
	}
	return ver.String(), nil
}

func parseVersion(str string) (*Version, error) {
	match := reVersion.FindStringSubmatch(str)
	if match == nil {
		return nil, &InvalidVersionError{Version: str}
	}
	group := func(name string) string {
		return match[reVersion.SubexpIndex(name)]
	}
	atoi := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, &InvalidVersionError{Version: str, Reason: "numeric segment out of range"}
		}
		return n, nil
	}

	var ver Version
	var err error
	if epoch := group("epoch"); epoch != "" {
		if ver.Epoch, err = atoi(epoch); err != nil {
			return nil, err
		}
	}
	for _, segStr := range strings.Split(group("release"), ".") {
		seg, err := atoi(segStr)
		if err != nil {
			return nil, err
		}
		ver.Release = append(ver.Release, seg)
	}

	// labelNumber handles the "label followed by an optional number" shape shared by the pre,
	// post, and dev segments.  A present label with no number means 0.
	labelNumber := func(label, number string) (string, int, error) {
		canonical := spellings[strings.ToLower(label)]
		if number == "" {
			return canonical, 0, nil
		}
		n, err := atoi(number)
		return canonical, n, err
	}

	if group("pre") != "" {
		l, n, err := labelNumber(group("pre_l"), group("pre_n"))
		if err != nil {
			return nil, err
		}
		ver.Pre = &PreRelease{L: l, N: n}
	}
	if group("post") != "" {
		_, n, err := labelNumber(group("post_l"), group("post_n1")+group("post_n2"))
		if err != nil {
			return nil, err
		}
		ver.Post = &n
	}
	if group("dev") != "" {
		_, n, err := labelNumber(group("dev_l"), group("dev_n"))
		if err != nil {
			return nil, err
		}
		ver.Dev = &n
	}

	localParts := strings.FieldsFunc(group("local"), func(r rune) bool {
		return strings.ContainsRune("-_.", r)
	})
	for _, part := range localParts {
		ver.Local = append(ver.Local, parseLocalSegment(part))
	}

	return &ver, nil
}

func parseLocalSegment(part string) intstr.IntOrString {
	part = strings.ToLower(part)
	if !isDigits(part) {
		return intstr.FromString(part)
	}
	if n, err := strconv.ParseInt(part, 10, 32); err == nil {
		return intstr.FromInt(int(n))
	}
	return intstr.FromString(strings.TrimLeft(part, "0"))
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

func (ver PublicVersion) writeTo(ret *strings.Builder) {
	if ver.Epoch > 0 {
		fmt.Fprintf(ret, "%d!", ver.Epoch)
	}
	if len(ver.Release) == 0 {
		panic("invalid version: no release segments")
	}
	fmt.Fprintf(ret, "%d", ver.Release[0])
	for _, segment := range ver.Release[1:] {
		fmt.Fprintf(ret, ".%d", segment)
	}
	if ver.Pre != nil {
		fmt.Fprintf(ret, "%s%d", ver.Pre.L, ver.Pre.N)
	}
	if ver.Post != nil {
		fmt.Fprintf(ret, ".post%d", *ver.Post)
	}
	if ver.Dev != nil {
		fmt.Fprintf(ret, ".dev%d", *ver.Dev)
	}
}

// String returns the canonical spelling of the public version.
func (ver PublicVersion) String() string {
	var ret strings.Builder
	ver.writeTo(&ret)
	return ret.String()
}

// String returns the canonical spelling of the full version.
func (ver LocalVersion) String() string {
	var ret strings.Builder
	ver.PublicVersion.writeTo(&ret)
	sep := "+"
	for _, local := range ver.Local {
		ret.WriteString(sep)
		ret.WriteString(local.String())
		sep = "."
	}
	return ret.String()
}

func (ver PublicVersion) GoString() string {
	pre := "nil"
	if ver.Pre != nil {
		pre = fmt.Sprintf("&%#v", *ver.Pre)
	}
	post := "nil"
	if ver.Post != nil {
		post = fmt.Sprintf("intPtr(%d)", *ver.Post)
	}
	dev := "nil"
	if ver.Dev != nil {
		dev = fmt.Sprintf("intPtr(%d)", *ver.Dev)
	}
	return fmt.Sprintf("pep440.PublicVersion{Epoch:%d, Release:%#v, Pre:%s, Post:%s, Dev:%s}",
		ver.Epoch, ver.Release, pre, post, dev)
}

func (ver LocalVersion) GoString() string {
	return fmt.Sprintf("pep440.LocalVersion{PublicVersion:%#v, Local:%#v}",
		ver.PublicVersion, ver.Local)
}

func (ver PublicVersion) releaseSegment(n int) int {
	if n < len(ver.Release) {
		return ver.Release[n]
	}
	return 0
}

func (ver PublicVersion) Major() int { return ver.releaseSegment(0) }
func (ver PublicVersion) Minor() int { return ver.releaseSegment(1) }
func (ver PublicVersion) Micro() int { return ver.releaseSegment(2) }

// IsFinal reports whether this is a plain release, with no pre, post, or dev segment.
func (ver PublicVersion) IsFinal() bool {
	return ver.Pre == nil && ver.Post == nil && ver.Dev == nil
}

func (ver LocalVersion) IsFinal() bool {
	return ver.PublicVersion.IsFinal() && len(ver.Local) == 0
}

// IsPreRelease reports whether the version is a pre-release or a developmental release.
func (ver PublicVersion) IsPreRelease() bool {
	return ver.Pre != nil || ver.Dev != nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func cmpRelease(a, b PublicVersion) int {
	for i := 0; i < len(a.Release) || i < len(b.Release); i++ {
		if d := a.releaseSegment(i) - b.releaseSegment(i); d != 0 {
			return sign(d)
		}
	}
	return 0
}

var preReleaseOrder = map[string]int{
	"a":  -3,
	"b":  -2,
	"rc": -1,
}

// preKey orders the pre-release position; a bare dev release of a final version sorts before
// any pre-release of it.
func preKey(v PublicVersion) (int, int) {
	switch {
	case v.Pre != nil:
		return preReleaseOrder[v.Pre.L], v.Pre.N
	case v.Dev != nil && v.Post == nil:
		return -4, 0
	default:
		return 0, 0
	}
}

func cmpOptional(a, b *int, absent int) int {
	aN, bN := absent, absent
	if a != nil {
		aN = *a
	}
	if b != nil {
		bN = *b
	}
	return sign(aN - bN)
}

// Cmp returns -1, 0, or 1 as a sorts before, equal to, or after b.
func (a PublicVersion) Cmp(b PublicVersion) int {
	if d := sign(a.Epoch - b.Epoch); d != 0 {
		return d
	}
	if d := cmpRelease(a, b); d != 0 {
		return d
	}
	aL, aN := preKey(a)
	bL, bN := preKey(b)
	if d := sign(aL - bL); d != 0 {
		return d
	}
	if d := sign(aN - bN); d != 0 {
		return d
	}
	if d := cmpOptional(a.Post, b.Post, -1); d != 0 {
		return d
	}
	// A missing dev segment sorts after any dev segment.
	const noDev = int(^uint(0) >> 1)
	return cmpOptional(a.Dev, b.Dev, noDev)
}

// localDigits returns the decimal digits of a numeric local segment.
func localDigits(seg intstr.IntOrString) (string, bool) {
	if seg.Type == intstr.Int {
		return strconv.Itoa(int(seg.IntVal)), true
	}
	return seg.StrVal, isDigits(seg.StrVal)
}

func cmpLocalSegment(a, b intstr.IntOrString) int {
	aDigits, aNum := localDigits(a)
	bDigits, bNum := localDigits(b)
	switch {
	case aNum && bNum:
		// neither has leading zeros, so the longer one is bigger
		if d := sign(len(aDigits) - len(bDigits)); d != 0 {
			return d
		}
		return strings.Compare(aDigits, bDigits)
	case aNum:
		return 1
	case bNum:
		return -1
	default:
		return strings.Compare(a.StrVal, b.StrVal)
	}
}

// Cmp returns -1, 0, or 1 as a sorts before, equal to, or after b.  Local labels compare
// segment-wise; numeric segments sort after alphanumeric ones, and a longer label sorts after
// its own prefix.
func (a LocalVersion) Cmp(b LocalVersion) int {
	if d := a.PublicVersion.Cmp(b.PublicVersion); d != 0 {
		return d
	}
	for i := 0; i < len(a.Local) && i < len(b.Local); i++ {
		if d := cmpLocalSegment(a.Local[i], b.Local[i]); d != 0 {
			return d
		}
	}
	return sign(len(a.Local) - len(b.Local))
}
