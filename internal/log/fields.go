// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldChannelID = "channel_id"
	FieldChannel   = "channel"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Resolution fields
	FieldTemplate = "template"
	FieldDepth    = "depth"
	FieldVia      = "via"
	FieldManifest = "manifest"
	FieldAttempt  = "attempt"

	// Path / URL fields
	FieldURL          = "url"
	FieldReferer      = "referer"
	FieldHost         = "host"
	FieldPath         = "path"
	FieldPlaylistPath = "playlist_path"

	// Network fields
	FieldStatus = "status"
)
