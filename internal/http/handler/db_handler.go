package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/smallbiznis/valora-bff/internal/audit"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	jsonContentType  = "application/json; charset=utf-8"
)

// listParams are never treated as column filters.
var listParams = map[string]struct{}{"order": {}, "limit": {}, "offset": {}}

// DBHandler serves the generic table CRUD routes.
type DBHandler struct {
	Tables repository.Tables
	Repo   repository.TableRepository
	Audit  *audit.Recorder
}

func NewDBHandler(tables repository.Tables, repo repository.TableRepository, recorder *audit.Recorder) *DBHandler {
	return &DBHandler{Tables: tables, Repo: repo, Audit: recorder}
}

func (h *DBHandler) List(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}

	q := repository.ListQuery{
		Filters: map[string]string{},
		Limit:   queryPositive(c, "limit", defaultListLimit, maxListLimit),
		Offset:  queryInt(c, "offset", 0, 0),
	}
	if order := strings.TrimSpace(c.Query("order")); order != "" {
		col, dir, _ := strings.Cut(order, ".")
		q.OrderBy = col
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			q.Desc = true
		default:
			badRequest(c, "order direction must be asc or desc.")
			return
		}
	}
	for key, values := range c.Request.URL.Query() {
		if _, reserved := listParams[key]; reserved || len(values) == 0 {
			continue
		}
		q.Filters[key] = values[0]
	}

	raw, err := h.Repo.List(c.Request.Context(), table, cl.UserID(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}

func (h *DBHandler) Get(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	raw, err := h.Repo.Get(c.Request.Context(), table, cl.UserID(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}

func (h *DBHandler) Create(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		badRequest(c, "Body must be a JSON object.")
		return
	}
	raw, err := h.Repo.Insert(c.Request.Context(), table, cl.UserID(), values)
	if err != nil {
		respondError(c, err)
		return
	}
	h.record(c, cl.UserID(), "db.insert", table.Name, gjson.GetBytes(raw, table.Columns[0]).String())
	c.Data(http.StatusCreated, jsonContentType, raw)
}

func (h *DBHandler) Update(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		badRequest(c, "Body must be a JSON object.")
		return
	}
	id := c.Param("id")
	raw, err := h.Repo.Update(c.Request.Context(), table, cl.UserID(), id, values)
	if err != nil {
		respondError(c, err)
		return
	}
	h.record(c, cl.UserID(), "db.update", table.Name, id)
	c.Data(http.StatusOK, jsonContentType, raw)
}

func (h *DBHandler) Delete(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	table, err := h.Tables.Lookup(c.Param("table"))
	if err != nil {
		respondError(c, err)
		return
	}
	id := c.Param("id")
	if err := h.Repo.Delete(c.Request.Context(), table, cl.UserID(), id); err != nil {
		respondError(c, err)
		return
	}
	h.record(c, cl.UserID(), "db.delete", table.Name, id)
	c.Status(http.StatusNoContent)
}

func (h *DBHandler) record(c *gin.Context, userID, action, table, id string) {
	h.Audit.Record(c.Request.Context(), audit.Event{
		ActorID:      userID,
		Action:       action,
		ResourceType: table,
		ResourceID:   id,
	})
}
