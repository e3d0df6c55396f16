package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gabteles/qu-mongoid/cluster"
)

func (a *API) listWorkers(c *gin.Context) {
	resp := WorkersResponse{Workers: []*cluster.Worker{}}
	for w, err := range a.eng.Workers(c.Request.Context()) {
		if err != nil {
			a.fail(c, err)
			return
		}
		resp.Workers = append(resp.Workers, w)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) clearWorkers(c *gin.Context) {
	if err := a.eng.ClearWorkers(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
