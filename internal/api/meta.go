package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/form"
	"backoffice/internal/screen"
)

type metaScreenItem struct {
	FQN    string `json:"fqn"`
	Module string `json:"module"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Key    string `json:"key"`
	Title  string `json:"title"`
	Detail bool   `json:"detail,omitempty"`
}

type metaScreen struct {
	metaScreenItem
	// Controls - форма создания с умолчаниями
	Controls []form.Control `json:"controls"`
}

func (s *Server) t(key string) string {
	if s.cfg.Translator == nil {
		return key
	}
	return s.cfg.Translator.T(key)
}

func (s *Server) metaItem(d *screen.Definition) metaScreenItem {
	return metaScreenItem{
		FQN:    d.FQN,
		Module: d.Module,
		Name:   d.Name,
		Path:   d.Path,
		Key:    d.Key,
		Title:  s.t(d.Title + ".title"),
		Detail: d.Detail,
	}
}

func (s *Server) metaList(c *gin.Context) {
	defs := s.Catalog().Definitions()
	out := make([]metaScreenItem, 0, len(defs))
	for _, d := range defs {
		out = append(out, s.metaItem(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) metaScreen(c *gin.Context) {
	d, ok := s.Catalog().Resolve(c.Param("screen"))
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(ErrCodeNotFound, "screen", "screen not found"))
		return
	}
	cfg := form.Config{Page: d.FQN, Translate: s.t}
	c.JSON(http.StatusOK, metaScreen{
		metaScreenItem: s.metaItem(d),
		Controls:       form.RenderAll(d.Fields, cfg, form.Defaults(d.Fields)),
	})
}

type codeItem struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Hidden bool   `json:"hidden,omitempty"`
}

func (s *Server) codeList(c *gin.Context) {
	name := c.Param("name")
	list, ok := s.Catalog().Codes[name]
	if !ok {
		c.JSON(http.StatusNotFound, errorBody(ErrCodeNotFound, "name", "code list not found"))
		return
	}
	items := make([]codeItem, 0, len(list.Items))
	for _, it := range list.Sorted() {
		items = append(items, codeItem{Code: it.Code, Label: s.t(it.Label), Hidden: it.Hidden})
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "items": items})
}
