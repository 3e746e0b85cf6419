// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pybuild/pkg/pyproject"
	"github.com/datawire/pybuild/pkg/testutil"
)

func loadProject(t *testing.T, configName string, files map[string]string) (*pyproject.LoadedConfig, error) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, files)
	return pyproject.Load(dlog.NewTestContext(t, true), filepath.Join(dir, configName))
}

func TestLoadFlitMetadata(t *testing.T) {
	t.Parallel()
	cfg, err := loadProject(t, "pyproject.toml", map[string]string{
		"pyproject.toml": `
[tool.flit.metadata]
module = "module1"
author = "Sir Robin"
author-email = "robin@camelot.uk"
home-page = "http://github.com/sirrobin/module1"
description-file = "README.rst"
requires = ["requests >= 2.18"]
classifiers = ["License :: OSI Approved :: MIT License"]

[tool.flit.metadata.requires-extra]
test = ["pytest", "mock; python_version < '3.3'"]
doc = ["sphinx"]

[tool.flit.metadata.urls]
Source = "https://github.com/sirrobin/module1"
Documentation = "https://module1.readthedocs.io"

[tool.flit.scripts]
foo = "module1:main"

[tool.flit.sdist]
include = ["doc/"]
exclude = ["doc/*.html", "!doc/index.html"]
`,
		"README.rst": "Module one\n==========\n",
	})
	require.NoError(t, err)

	assert.Equal(t, "module1", cfg.Module)
	assert.Equal(t, []string{"version", "description"}, cfg.DynamicMetadata)
	assert.True(t, cfg.IsDynamic("version"))
	assert.Equal(t, "", cfg.Metadata.Name)
	assert.Equal(t, "Sir Robin", cfg.Metadata.Author)
	assert.Equal(t, "robin@camelot.uk", cfg.Metadata.AuthorEmail)
	assert.Equal(t, "http://github.com/sirrobin/module1", cfg.Metadata.HomePage)
	assert.Equal(t, "Module one\n==========\n", cfg.Metadata.Description)
	assert.Equal(t, "text/x-rst", cfg.Metadata.DescriptionContentType)
	assert.Equal(t, []string{"README.rst"}, cfg.ReferencedFiles)
	assert.Equal(t, []string{
		"Documentation, https://module1.readthedocs.io",
		"Source, https://github.com/sirrobin/module1",
	}, cfg.Metadata.ProjectURLs)
	assert.Equal(t, []string{
		"requests >= 2.18",
		`sphinx ; extra == "doc"`,
		`pytest ; extra == "test"`,
		`mock ; extra == "test" and (python_version < '3.3')`,
	}, cfg.Metadata.RequiresDist)
	assert.Equal(t, []string{"doc", "test"}, cfg.Metadata.ProvidesExtra)
	assert.Equal(t, []string{"requests >= 2.18"}, cfg.ReqsByExtra[pyproject.NoExtra])
	assert.Equal(t, map[string]map[string]string{
		"console_scripts": {"foo": "module1:main"},
	}, cfg.EntryPoints)
	assert.Equal(t, []string{"doc"}, cfg.SdistIncludePatterns)
	assert.Equal(t, []string{"doc/*.html", "!doc/index.html"}, cfg.SdistExcludePatterns)
}

func TestLoadPEP621(t *testing.T) {
	t.Parallel()
	cfg, err := loadProject(t, "pyproject.toml", map[string]string{
		"pyproject.toml": `
[project]
name = "my-package"
version = "1.0beta2"
dynamic = ["description"]
readme = {file = "README.md", content-type = "text/markdown; charset=UTF-8"}
license = "MIT"
requires-python = ">=3.7"
authors = [
    {name = "Sir Robin", email = "robin@camelot.uk"},
    {name = "Sir Lancelot"},
]
keywords = ["grail", "quest"]
dependencies = ["requests"]

[project.optional-dependencies]
test = ["pytest; sys_platform != 'win32'"]

[project.urls]
homepage = "https://example.com"
Source = "https://github.com/example/my-package"

[project.scripts]
my-cmd = "my_package:main"

[project.entry-points."pygments.lexers"]
dogelang = "my_package.lexer:DogeLexer"

[tool.flit.external-data]
directory = "data"
`,
		"README.md":      "# My package\n",
		"data/share.txt": "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "my_package", cfg.Module)
	assert.Equal(t, "my-package", cfg.Metadata.Name)
	assert.Equal(t, "1.0b2", cfg.Metadata.Version)
	assert.Equal(t, []string{"description"}, cfg.DynamicMetadata)
	assert.Equal(t, "# My package\n", cfg.Metadata.Description)
	assert.Equal(t, "text/markdown; charset=UTF-8", cfg.Metadata.DescriptionContentType)
	assert.Equal(t, "MIT", cfg.Metadata.LicenseExpression)
	assert.Equal(t, ">=3.7", cfg.Metadata.RequiresPython)
	assert.Equal(t, "Sir Lancelot", cfg.Metadata.Author)
	assert.Equal(t, "Sir Robin <robin@camelot.uk>", cfg.Metadata.AuthorEmail)
	assert.Equal(t, "grail,quest", cfg.Metadata.Keywords)
	assert.Equal(t, "https://example.com", cfg.Metadata.HomePage)
	assert.Equal(t, []string{"Source, https://github.com/example/my-package"}, cfg.Metadata.ProjectURLs)
	assert.Equal(t, []string{
		"requests",
		`pytest ; extra == "test" and (sys_platform != 'win32')`,
	}, cfg.Metadata.RequiresDist)
	assert.Equal(t, map[string]map[string]string{
		"console_scripts": {"my-cmd": "my_package:main"},
		"pygments.lexers": {"dogelang": "my_package.lexer:DogeLexer"},
	}, cfg.EntryPoints)
	assert.Equal(t, filepath.Join(cfg.ProjectDir(), "data"), cfg.DataDirectory)
}

func TestLoadModuleOverride(t *testing.T) {
	t.Parallel()
	cfg, err := loadProject(t, "pyproject.toml", map[string]string{
		"pyproject.toml": `
[project]
name = "dist-name"
version = "0.1"
description = "A thing"

[tool.flit.module]
name = "import_name"
`,
	})
	require.NoError(t, err)
	assert.Equal(t, "import_name", cfg.Module)
	assert.Equal(t, "A thing", cfg.Metadata.Summary)
	assert.Empty(t, cfg.DynamicMetadata)
}

func TestFlattenEntryPoints(t *testing.T) {
	t.Parallel()
	cfg, err := loadProject(t, "pyproject.toml", map[string]string{
		"pyproject.toml": `
[tool.flit.metadata]
module = "pkg"
author = "Sir Robin"

[tool.flit.entrypoints.a]
x = "pkg:x"
[tool.flit.entrypoints.a.b]
y = "pkg:y"
[tool.flit.entrypoints.c.d]
z = "pkg:z"
`,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"a":   {"x": "pkg:x"},
		"a.b": {"y": "pkg:y"},
		"c.d": {"z": "pkg:z"},
	}, cfg.EntryPoints)
}

func TestLoadINI(t *testing.T) {
	t.Parallel()
	cfg, err := loadProject(t, "flit.ini", map[string]string{
		"flit.ini": `[metadata]
module = module1
Author = Sir Robin
requires = requests
    docutils
dev-requires = pytest
classifiers =
    Topic :: Utilities

[scripts]
MyScript = module1:main
`,
	})
	require.NoError(t, err)
	assert.Equal(t, "module1", cfg.Module)
	assert.Equal(t, "Sir Robin", cfg.Metadata.Author)
	assert.Equal(t, []string{"Topic :: Utilities"}, cfg.Metadata.Classifiers)
	assert.Equal(t, []string{"requests", "docutils", `pytest ; extra == "dev"`}, cfg.Metadata.RequiresDist)
	assert.Equal(t, []string{"dev"}, cfg.Metadata.ProvidesExtra)
	assert.Equal(t, map[string]map[string]string{
		"console_scripts": {"MyScript": "module1:main"},
	}, cfg.EntryPoints)
}

func TestEntryPointsConflict(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		ConfigName string
		Files      map[string]string
	}{
		"ini": {
			ConfigName: "flit.ini",
			Files: map[string]string{
				"flit.ini":         "[metadata]\nmodule = module1\nauthor = Sir Robin\n\n[scripts]\nfoo = module1:main\n",
				"entry_points.txt": "[console_scripts]\nbar = module1:other\n",
			},
		},
		"toml": {
			ConfigName: "pyproject.toml",
			Files: map[string]string{
				"pyproject.toml": `
[tool.flit.metadata]
module = "module1"
author = "Sir Robin"

[tool.flit.scripts]
foo = "module1:main"

[tool.flit.entrypoints.console_scripts]
bar = "module1:other"
`,
			},
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			_, err := loadProject(t, tcData.ConfigName, tcData.Files)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pyproject.ErrEntryPointsConflict), err)
			var cfgErr *pyproject.ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	const flitHeader = "[tool.flit.metadata]\nmodule = \"pkg\"\nauthor = \"Sir Robin\"\n"
	testcases := map[string]struct {
		Config string
		Err    string
	}{
		"neither": {
			Config: "[build-system]\nrequires = [\"flit_core\"]\n",
			Err:    "neither [project] nor [tool.flit.metadata] found",
		},
		"both": {
			Config: flitHeader + "[project]\nname = \"pkg\"\n",
			Err:    "not both",
		},
		"hint": {
			Config: flitHeader + "homepage = \"http://example.com\"\n",
			Err:    `unrecognised metadata key: "homepage" (did you mean "home-page"?)`,
		},
		"no-hint": {
			Config: flitHeader + "flavor = \"strawberry\"\n",
			Err:    `unrecognised metadata key: "flavor"`,
		},
		"missing-author": {
			Config: "[tool.flit.metadata]\nmodule = \"pkg\"\n",
			Err:    `required field "author" not found`,
		},
		"bad-module": {
			Config: "[tool.flit.metadata]\nmodule = \"my-pkg\"\nauthor = \"x\"\n",
			Err:    "not a valid identifier",
		},
		"list-type": {
			Config: flitHeader + "classifiers = \"Topic :: Utilities\"\n",
			Err:    "expected a list of strings for classifiers field",
		},
		"dev-requires": {
			Config: flitHeader + "dev-requires = [\"pytest\"]\n[tool.flit.metadata.requires-extra]\ndev = [\"mock\"]\n",
			Err:    "dev-requires occurs together with its replacement requires-extra.dev",
		},
		"unknown-table": {
			Config: flitHeader + "[tool.flit.bogus]\nx = 1\n[tool.flit.x-custom]\ny = 2\n",
			Err:    "unexpected tables in pyproject.toml: [tool.flit.bogus]",
		},
		"module-without-project": {
			Config: flitHeader + "[tool.flit.module]\nname = \"other\"\n",
			Err:    "[tool.flit.module] table is only valid with [project] metadata",
		},
		"project-scripts": {
			Config: "[project]\nname = \"pkg\"\ndynamic = [\"version\", \"description\"]\n[tool.flit.scripts]\nfoo = \"pkg:main\"\n",
			Err:    "don't mix [project] metadata with [tool.flit.scripts]",
		},
		"dynamic-and-static": {
			Config: "[project]\nname = \"pkg\"\nversion = \"1.0\"\ndynamic = [\"version\", \"description\"]\n",
			Err:    "version listed in project.dynamic, but also specified statically",
		},
		"dynamic-other": {
			Config: "[project]\nname = \"pkg\"\nversion = \"1.0\"\ndynamic = [\"description\", \"readme\"]\n",
			Err:    "only 'version' and 'description' may be dynamic",
		},
		"no-description": {
			Config: "[project]\nname = \"pkg\"\nversion = \"1.0\"\n",
			Err:    "description must be specified under [project] or listed as a dynamic field",
		},
		"console-scripts-entry-points": {
			Config: "[project]\nname = \"pkg\"\ndynamic = [\"version\", \"description\"]\n" +
				"[project.entry-points.console_scripts]\nfoo = \"pkg:main\"\n",
			Err: "define console_scripts in [project.scripts]",
		},
		"bad-version": {
			Config: "[project]\nname = \"pkg\"\nversion = \"3!\"\ndescription = \"x\"\n",
			Err:    "invalid version",
		},
		"readme-no-content-type": {
			Config: "[project]\nname = \"pkg\"\ndynamic = [\"version\", \"description\"]\nreadme = {text = \"hi\"}\n",
			Err:    "must have a content-type field",
		},
		"readme-missing": {
			Config: "[project]\nname = \"pkg\"\ndynamic = [\"version\", \"description\"]\nreadme = \"README.rst\"\n",
			Err:    "does not exist",
		},
		"sdist-bad-chars": {
			Config: flitHeader + "[tool.flit.sdist]\ninclude = [\"doc/<x>\"]\n",
			Err:    "contains bad characters",
		},
		"sdist-absolute": {
			Config: flitHeader + "[tool.flit.sdist]\nexclude = [\"/etc/passwd\"]\n",
			Err:    "is an absolute path",
		},
		"sdist-escape": {
			Config: flitHeader + "[tool.flit.sdist]\ninclude = [\"doc/../../x\"]\n",
			Err:    "points out of the directory",
		},
		"sdist-star-star": {
			Config: flitHeader + "[tool.flit.sdist]\ninclude = [\"doc/**.rst\"]\n",
			Err:    "sdist include pattern",
		},
		"sdist-unknown-key": {
			Config: flitHeader + "[tool.flit.sdist]\nfiles = [\"x\"]\n",
			Err:    "unknown keys in [tool.flit.sdist]: files",
		},
		"external-data-missing": {
			Config: flitHeader + "[tool.flit.external-data]\ndirectory = \"data\"\n",
			Err:    `external data directory "data" does not exist`,
		},
		"external-data-outside": {
			Config: flitHeader + "[tool.flit.external-data]\ndirectory = \"..\"\n",
			Err:    "should be inside the project directory",
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			_, err := loadProject(t, "pyproject.toml", map[string]string{
				"pyproject.toml": tcData.Config,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tcData.Err)
			var cfgErr *pyproject.ConfigError
			assert.True(t, errors.As(err, &cfgErr), err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := pyproject.Load(dlog.NewTestContext(t, true), filepath.Join(t.TempDir(), "pyproject.toml"))
	require.Error(t, err)
	var cfgErr *pyproject.ConfigError
	assert.False(t, errors.As(err, &cfgErr))
}
