package views

import "embed"

// FS holds the HTML templates rendered by the fulfillment worker and the
// payment pages.
//
//go:embed emails/*.html pages/*.html
var FS embed.FS
