// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

type QuickConfig = quick.Config

// staticArgs converts one row of static testcase inputs to arguments for a function of type
// fnType.  A nil in the row becomes the zero value of that parameter.
func staticArgs(t *testing.T, fnType reflect.Type, row int, tc []interface{}) ([]reflect.Value, bool) {
	t.Helper()
	if len(tc) != fnType.NumIn() {
		t.Errorf("static#%d has %d args, but the function takes %d args", row, len(tc), fnType.NumIn())
		return nil, false
	}
	args := make([]reflect.Value, len(tc))
	for i, arg := range tc {
		if arg == nil {
			args[i] = reflect.Zero(fnType.In(i))
		} else {
			args[i] = reflect.ValueOf(arg)
		}
	}
	return args, true
}

func interfaces(values []reflect.Value) []interface{} {
	ret := make([]interface{}, 0, len(values))
	for _, val := range values {
		ret = append(ret, val.Interface())
	}
	return ret
}

// QuickCheck runs testing/quick.Check, and then also calls fn with each of the static
// testcases, which makes sure that known edge cases get covered every run.
func QuickCheck(t *testing.T, fn interface{}, cfg quick.Config, testcases ...[]interface{}) {
	t.Helper()
	err := quick.Check(fn, &cfg)
	assert.NoError(t, err)
	if errors.As(err, new(quick.SetupError)) {
		return
	}

	fnVal := reflect.ValueOf(fn)
	for i, tc := range testcases {
		args, ok := staticArgs(t, fnVal.Type(), i, tc)
		if !ok || fnVal.Call(args)[0].Bool() {
			continue
		}
		assert.NoError(t, fmt.Errorf("static%w", &quick.CheckError{
			Count: i + 1,
			In:    interfaces(args),
		}))
	}
}

// QuickCheckEqual is to testing/quick.CheckEqual what QuickCheck is to testing/quick.Check.
func QuickCheckEqual(t *testing.T, fn1, fn2 interface{}, cfg quick.Config, testcases ...[]interface{}) {
	t.Helper()
	err := quick.CheckEqual(fn1, fn2, &cfg)
	assert.NoError(t, err)
	if errors.As(err, new(quick.SetupError)) {
		return
	}

	fn1Val, fn2Val := reflect.ValueOf(fn1), reflect.ValueOf(fn2)
	for i, tc := range testcases {
		args, ok := staticArgs(t, fn1Val.Type(), i, tc)
		if !ok {
			continue
		}
		out1 := interfaces(fn1Val.Call(args))
		out2 := interfaces(fn2Val.Call(args))
		if reflect.DeepEqual(out1, out2) {
			continue
		}
		assert.NoError(t, fmt.Errorf("static%w", &quick.CheckEqualError{
			CheckError: quick.CheckError{Count: i + 1, In: interfaces(args)},
			Out1:       out1,
			Out2:       out2,
		}))
	}
}
