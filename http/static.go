package http

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed web
var webAssets embed.FS

// staticHandler serves the browser front end: index.html at / and its
// script and stylesheet next to it.
func staticHandler() http.Handler {
	assets, err := fs.Sub(webAssets, "web")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(assets))
}
