package web

import "embed"

// StaticFS embeds the dashboard: index.html plus its css and js.
//
//go:embed static/*
var StaticFS embed.FS
