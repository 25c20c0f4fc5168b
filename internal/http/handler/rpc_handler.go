package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/valora-bff/internal/repository"
)

// RPCHandler dispatches calls to allow-listed database functions.
type RPCHandler struct {
	Functions repository.Functions
	Repo      repository.RPCRepository
}

func NewRPCHandler(functions repository.Functions, repo repository.RPCRepository) *RPCHandler {
	return &RPCHandler{Functions: functions, Repo: repo}
}

func (h *RPCHandler) Call(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}
	fn, err := h.Functions.Lookup(c.Param("fn"))
	if err != nil {
		respondError(c, err)
		return
	}

	args := map[string]any{}
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Arguments must be a JSON object.")
		return
	}
	if fn.UserScoped {
		args[repository.UserParam] = cl.UserID()
	} else {
		delete(args, repository.UserParam)
	}

	raw, err := h.Repo.Call(c.Request.Context(), fn, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}
