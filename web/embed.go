// Package web embeds the dashboard page and its static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/* static/*
var Assets embed.FS

// StaticFS returns the static/ directory for http.FileServer.
func StaticFS() fs.FS {
	sub, err := fs.Sub(Assets, "static")
	if err != nil {
		panic("web: embedded static filesystem not found: " + err.Error())
	}
	return sub
}
