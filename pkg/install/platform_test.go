// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package install_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/pybuild/pkg/install"
	"github.com/datawire/pybuild/pkg/python/pep425"
)

const samplePlatform = `
ConsoleShebang: /usr/bin/python3.9
GraphicalShebang: /usr/bin/python3.9
Scheme:
  purelib: /usr/lib/python3.9/site-packages
  platlib: /usr/lib64/python3.9/site-packages
  headers: /usr/include/python3.9
  scripts: /usr/bin
  data: /usr
UID: 0
GID: 0
UName: root
GName: root
VersionInfo:
  major: 3
  minor: 9
  micro: 7
  releaselevel: final
  serial: 0
Tags:
- cp39-cp39-linux_x86_64
- py3-none-any
`

func TestParsePlatformFile(t *testing.T) {
	t.Parallel()
	pf, err := install.ParsePlatformFile([]byte(samplePlatform))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3.9", pf.ConsoleShebang)
	assert.Equal(t, "/usr/lib/python3.9/site-packages", pf.Scheme.PureLib)
	assert.Equal(t, "root", pf.UName)
	require.NotNil(t, pf.VersionInfo)
	assert.Equal(t, 9, pf.VersionInfo.Minor)
	assert.Equal(t, pep425.Installer{
		{Python: "cp39", ABI: "cp39", Platform: "linux_x86_64"},
		{Python: "py3", ABI: "none", Platform: "any"},
	}, pf.Tags)
	assert.Empty(t, pf.PyCompile)

	plat, err := pf.Resolve()
	require.NoError(t, err)
	assert.Nil(t, plat.PyCompile)
	assert.NoError(t, plat.Init())
}

func TestParsePlatformFileStrict(t *testing.T) {
	t.Parallel()
	_, err := install.ParsePlatformFile([]byte(samplePlatform + "Bogus: 1\n"))
	assert.Error(t, err)
}

func TestPlatformFileRoundTrip(t *testing.T) {
	t.Parallel()
	pf, err := install.ParsePlatformFile([]byte(samplePlatform))
	require.NoError(t, err)
	pf.MagicNumber = []byte("a\r\r\n")

	bs, err := pf.Marshal()
	require.NoError(t, err)
	filename := filepath.Join(t.TempDir(), "platform.yml")
	require.NoError(t, os.WriteFile(filename, bs, 0o644))

	again, err := install.LoadPlatformFile(filename)
	require.NoError(t, err)
	assert.Equal(t, pf, again)
}
