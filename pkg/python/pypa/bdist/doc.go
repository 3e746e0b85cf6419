// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package bdist implements the PyPA Binary distribution format (AKA PEP 427 -- The Wheel Binary
// Package Format 1.0): building pure-Python wheels, verifying them, and unpacking them for
// installation.
//
// https://www.python.org/dev/peps/pep-0427/
// https://packaging.python.org/specifications/binary-distribution-format/
//
// Other useful references:
//   - distutils/command/install.py
//   - site-packages/pip/_internal/operations/install/wheel.py
//   - site-packages/pip/_internal/utils/unpacking.py
//   - site-packages/pip/_internal/utils/wheel.py
package bdist
