// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package validate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/python/coremetadata"
	"github.com/datawire/pybuild/pkg/validate"
)

type staticClassifiers map[string]bool

func (s staticClassifiers) Known(_ context.Context, _ []string) (map[string]bool, bool) {
	return s, s != nil
}

func TestName(t *testing.T) {
	t.Parallel()
	testcases := map[string]bool{
		"foo":         true,
		"Foo.Bar-baz": true,
		"a":           true,
		"1_2":         true,
		"-foo":        false,
		"foo_":        false,
		"foo bar":     false,
		"":            false,
	}
	for name, valid := range testcases {
		assert.Equal(t, valid, validate.Name(name) == nil, name)
	}
}

func TestEntryPoints(t *testing.T) {
	t.Parallel()
	testcases := map[string]int{
		"pkg":              0,
		"pkg.sub:main":     0,
		"pkg:obj.attr":     0,
		"a:b:c":            1,
		"pkg-name:main":    1,
		"pkg:":             1,
		":main":            1,
		"pkg.:main":        1,
		"pkg:main.2nd":     1,
		"my_pkg.cli:Main_": 0,
	}
	for ref, nProblems := range testcases {
		problems := validate.EntryPoints(map[string]map[string]string{
			"console_scripts": {"cmd": ref},
		})
		assert.Len(t, problems, nProblems, ref)
	}
	assert.Equal(t,
		[]string{"Invalid entry point in group console_scripts: cmd = a:b:c"},
		validate.EntryPoints(map[string]map[string]string{"console_scripts": {"cmd": "a:b:c"}}))
}

func TestRequiresPython(t *testing.T) {
	t.Parallel()
	testcases := map[string]bool{
		"":                 true,
		">=3.6":            true,
		">= 3.6, != 3.7.*": true,
		"~=3.6":            true,
		"===3.6.1+local":   true,
		"3.6":              false,
		">=3.6; os_name":   false,
		"=>3.6":            false,
	}
	for spec, valid := range testcases {
		assert.Equal(t, valid, validate.RequiresPython(spec) == nil, spec)
	}
}

func TestRequiresDist(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"requests":                        "",
		"requests >= 2.18":                "",
		"requests (>=2.18, <3)":           "",
		"requests[security,socks] >=2.18": "",
		"pip @ https://github.com/pypa/pip/archive/1.3.1.zip":  "",
		`mock ; extra == "test" and (python_version < '3.3')`: "",

		"-requests":           `Could not parse requirement: "-requests"`,
		"requests[se-curity]": `Invalid extras in requirement: "requests[se-curity]"`,
		"requests 2.18":       `Invalid version specifier "2.18" in requirement "requests 2.18"`,
		"requests =2.18":      `Invalid version specifier "=2.18" in requirement "requests =2.18"`,
		`requests; python_verson < "3"`: `Invalid environment marker "python_verson < \"3\"": ` +
			`invalid variable name: "python_verson"`,
	}
	for req, exp := range testcases {
		problems := validate.RequiresDist([]string{req})
		if exp == "" {
			assert.Empty(t, problems, req)
		} else {
			assert.Equal(t, []string{exp}, problems, req)
		}
	}
}

func TestEnvironmentMarker(t *testing.T) {
	t.Parallel()
	assert.Empty(t, validate.EnvironmentMarker(`os_name == "posix" and (python_version >= "3.6" or extra == "x")`))
	assert.Len(t, validate.EnvironmentMarker(`python_version < "3" < "4"`), 1)
	assert.Len(t, validate.EnvironmentMarker(`python_version is "3"`), 1)
	assert.Len(t, validate.EnvironmentMarker(`python_version < "3`), 1)
}

func TestURLs(t *testing.T) {
	t.Parallel()
	assert.Empty(t, validate.URL(""))
	assert.Empty(t, validate.URL("https://example.com"))
	assert.Equal(t, []string{`URL "ftp://example.com" doesn't start with https:// or http://`},
		validate.URL("ftp://example.com"))
	assert.Equal(t, []string{"URL missing address"}, validate.URL("http://"))

	assert.Empty(t, validate.ProjectURLs([]string{"Source, https://example.com/src"}))
	assert.Equal(t, []string{`No name for project URL "https://example.com"`},
		validate.ProjectURLs([]string{", https://example.com"}))
	assert.Equal(t,
		[]string{`Project URL name "This label is much too long to be displayed" longer than 32 characters`},
		validate.ProjectURLs([]string{"This label is much too long to be displayed, https://example.com"}))
}

func TestClassifiers(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	known := staticClassifiers{"Topic :: Utilities": true}

	assert.Empty(t, validate.Classifiers(ctx, []string{"Topic :: Utilities", "Private :: Do Not Upload"}, known))
	assert.Equal(t, []string{`Unrecognised classifier: "Topic :: Bogus"`},
		validate.Classifiers(ctx, []string{"Topic :: Bogus", "Topic :: Utilities", "Topic :: Bogus"}, known))
	// Unavailable vocabulary: nothing to check against.
	assert.Empty(t, validate.Classifiers(ctx, []string{"Topic :: Bogus"}, staticClassifiers(nil)))
	assert.Empty(t, validate.Classifiers(ctx, []string{"Topic :: Bogus"}, nil))
}

func TestConfig(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, true)
	cfg := &pyproject.LoadedConfig{
		Module: "module1",
		Metadata: coremetadata.Metadata{
			HomePage:       "github.com/sirrobin/module1",
			RequiresPython: ">=3",
			RequiresDist:   []string{"requests"},
			Classifiers:    []string{"Topic :: Bogus"},
		},
		EntryPoints: map[string]map[string]string{
			"console_scripts": {"ok": "module1:main", "bad": "a:b:c"},
		},
	}
	problems := validate.Config(ctx, cfg, validate.Options{
		Classifiers: staticClassifiers{"Topic :: Utilities": true},
	})
	assert.Equal(t, []string{
		`Unrecognised classifier: "Topic :: Bogus"`,
		"Invalid entry point in group console_scripts: bad = a:b:c",
		`URL "github.com/sirrobin/module1" doesn't start with https:// or http://`,
	}, problems)
}
