// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingRefresh is returned when an App is created without a refresh function.
	ErrMissingRefresh = errors.New("refresh function is required")

	// ErrMissingListen is returned when serve mode has no listen address.
	ErrMissingListen = errors.New("listen address is required")
)
