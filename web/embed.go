package web

import "embed"

// Dist embeds the built frontend bundle.
//
//go:embed all:dist
var Dist embed.FS
