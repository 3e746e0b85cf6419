// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/datawire/pybuild/pkg/backend"
	"github.com/datawire/pybuild/pkg/cliutil"
	"github.com/datawire/pybuild/pkg/install"
)

func init() {
	var flags struct {
		Symlink      bool
		PthFile      bool
		PlatformFile string
		Root         string
		Python       string
		Extras       []string
	}
	cmd := &cobra.Command{
		Use:   "install [flags] [PYPROJECT]",
		Short: "Install the project in to a Python environment",
		Long: "Install the project configured by PYPROJECT (default: pyproject.toml, or " +
			"flit.ini if only that exists) in to a Python environment.  Dependencies are " +
			"not installed, only listed." +
			"\n\n" +
			"The target environment is described either by running the --python " +
			"interpreter, or by a YAML --platform-file as written by `pybuild python " +
			"inspect`:" +
			"\n\n" +
			"    ConsoleShebang: /usr/bin/python3.9\n" +
			"    GraphicalShebang: /usr/bin/python3.9\n" +
			"    Scheme:\n" +
			"      purelib: /usr/lib/python3.9/site-packages\n" +
			"      platlib: /usr/lib64/python3.9/site-packages\n" +
			"      headers: /usr/include/python3.9\n" +
			"      scripts: /usr/bin\n" +
			"      data: /usr\n" +
			"    VersionInfo: {major: 3, minor: 9, micro: 7, releaselevel: final, serial: 0}\n" +
			"    # command to run to generate .pyc files; omit to not compile.\n" +
			"    PyCompile: ['python3.9', '-m', 'compileall']\n",
		Args: cliutil.ConfigFileArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if flags.Symlink && flags.PthFile {
				return cliutil.FlagErrorFunc(cmd, errors.New("--symlink and --pth-file are mutually exclusive"))
			}

			var platFile *install.PlatformFile
			var err error
			if flags.PlatformFile != "" {
				platFile, err = install.LoadPlatformFile(flags.PlatformFile)
			} else {
				platFile, err = install.InspectPlatform(ctx, flags.Python)
			}
			if err != nil {
				return err
			}
			plat, err := platFile.Resolve()
			if err != nil {
				return err
			}

			opts := loadOptions(cmd)
			opts.Python = []string{flags.Python}
			proj, err := backend.LoadProject(ctx, cliutil.ConfigFile(".", args), opts)
			if err != nil {
				return err
			}

			installer := &install.Installer{
				Project:  proj,
				Platform: plat,
				Root:     flags.Root,
				Extras:   flags.Extras,
			}
			switch {
			case flags.Symlink:
				installer.Mode = install.ModeSymlink
			case flags.PthFile:
				installer.Mode = install.ModePth
			}
			return installer.Install(ctx)
		},
	}
	cmd.Flags().BoolVarP(&flags.Symlink, "symlink", "s", false,
		"Symlink the module in to site-packages rather than copying it")
	cmd.Flags().BoolVar(&flags.PthFile, "pth-file", false,
		"Add the module's source directory to sys.path with a .pth file rather than copying it")
	cmd.Flags().StringVar(&flags.PlatformFile, "platform-file", "",
		"Read the target environment from `YAML_FILE` rather than inspecting --python")
	cmd.Flags().StringVar(&flags.Root, "root", "",
		"Install below `DIR`, as if it were the root directory")
	cmd.Flags().StringVar(&flags.Python, "python", "python3",
		"The `INTERPRETER` to install for")
	cmd.Flags().StringSliceVar(&flags.Extras, "extras", nil,
		"Also list the requirements of these `EXTRA`s")

	argparser.AddCommand(cmd)
}
