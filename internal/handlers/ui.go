package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	K           int
	Classes     []string
	Examples    []string
	FlagOptions []string
}

// Index handles GET / and renders the upload page.
func (h *Handler) Index(c *gin.Context) {
	page := indexPage{Examples: h.exampleNames()}
	if h.pipeline != nil {
		page.K = h.pipeline.DefaultK()
		page.Classes = h.pipeline.Catalog().Labels()
	}
	if h.flags != nil {
		page.FlagOptions = h.flags.Options()
	}
	c.HTML(http.StatusOK, "index.html", page)
}
