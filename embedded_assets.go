package main

import (
	"embed"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

//go:embed dist/*
var webappContent embed.FS

// serveEmbeddedFile serves a page from the embedded dist directory.
func serveEmbeddedFile(c *gin.Context, name string) {
	fullPath := path.Join("dist", name)
	f, err := webappContent.Open(fullPath)
	if err != nil {
		log.Warnf("File not found: %s", fullPath)
		c.Status(http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	http.ServeContent(c.Writer, c.Request, stat.Name(), stat.ModTime(), f.(io.ReadSeeker))
}
