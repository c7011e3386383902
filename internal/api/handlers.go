package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backoffice/internal/backend"
	"backoffice/internal/form"
	"backoffice/internal/screen"
	"backoffice/internal/upload"
)

func (s *Server) screenFor(c *gin.Context) (*screen.Screen, bool) {
	sc, err := currentSession(c).ws.Screen(c.Param("screen"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sc, true
}

// bindOptional - пустое тело допустимо.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "body", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		badRequest(c, "index", "index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

func (s *Server) listRecords(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	page, err := sc.List(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type openReq struct {
	// Record - строка списка; пусто - создание
	Record   backend.Record `json:"record"`
	Readonly bool           `json:"readonly"`
}

func (s *Server) openDialog(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	var req openReq
	if !bindOptional(c, &req) {
		return
	}
	if len(req.Record) == 0 {
		req.Record = nil
	}
	c.JSON(http.StatusOK, sc.Open(c.Request.Context(), req.Record, req.Readonly))
}

func (s *Server) getDialog(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sc.Drawer())
}

func (s *Server) saveDialog(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	var values form.Values
	if !bindOptional(c, &values) {
		return
	}
	if err := sc.Save(c.Request.Context(), values); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.Drawer())
}

func (s *Server) deleteDialog(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	if err := sc.Delete(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.Drawer())
}

func (s *Server) closeDialog(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	sc.Close()
	c.JSON(http.StatusOK, sc.Drawer())
}

// ===== options rows =====

func (s *Server) addRow(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	row, err := sc.AddRow(c.Param("field"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"row": row, "dialog": sc.Drawer()})
}

func (s *Server) saveRow(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var row form.Values
	if err := c.ShouldBindJSON(&row); err != nil {
		badRequest(c, "body", "Invalid JSON")
		return
	}
	if err := sc.SaveRow(c.Request.Context(), c.Param("field"), index, row); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.Drawer())
}

func (s *Server) deleteRow(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if err := sc.DeleteRow(c.Request.Context(), c.Param("field"), index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.Drawer())
}

// ===== files =====

func (s *Server) uploadFile(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	if s.cfg.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(ErrCodeInternal, "", "uploads are not configured"))
		return
	}
	field := c.Param("field")
	if err := sc.CheckUpload(field); err != nil {
		writeError(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "multipart field 'file' is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	p, err := s.cfg.Uploader.Upload(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), f, fh.Size)
	switch {
	case errors.Is(err, upload.ErrEmptyFile):
		badRequest(c, "file", err.Error())
		return
	case errors.Is(err, upload.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(ErrCodeBadRequest, "file", err.Error()))
		return
	case err != nil:
		writeError(c, err)
		return
	}

	files, err := sc.AttachUpload(field, p.PublicURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "file": p, "dialog": sc.Drawer()})
}

func (s *Server) removeFile(c *gin.Context) {
	sc, ok := s.screenFor(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}
	files, err := sc.RemoveUpload(c.Param("field"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "dialog": sc.Drawer()})
}
