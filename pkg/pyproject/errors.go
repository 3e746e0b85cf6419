// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pyproject

import (
	"errors"
	"fmt"
)

// ConfigError is returned for any problem with the content of a configuration file.
type ConfigError struct {
	Filename string
	Msg      string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Filename == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Filename, msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ErrEntryPointsConflict is wrapped in a *ConfigError when a config file declares both a scripts
// table and a "console_scripts" entry point group.
var ErrEntryPointsConflict = errors.New(
	"please specify console_scripts entry points, or [scripts] in flit config, not both")
