// Package web embeds the browser front end served at the site root.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/index.html static/app.js static/style.css
var embedded embed.FS

// Assets returns the static files rooted at the site root.
func Assets() fs.FS {
	sub, err := fs.Sub(embedded, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
