// Package health exposes a liveness/readiness endpoint backed directly
// by Registry counts, replacing the teacher's static "healthy" JSON
// (cmd/v1/session/main.go) with a report that reflects actual server
// load — useful to an operator deciding whether a reap is stuck.
package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

type report struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	Rooms       int    `json:"rooms"`
	Games       int    `json:"games"`
}

// Handler returns a gin handler reporting current Registry occupancy.
func Handler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, report{
			Status:      "healthy",
			Connections: reg.Connections.Len(),
			Users:       reg.Users.Len(),
			Rooms:       reg.Rooms.Len(),
			Games:       reg.Games.Len(),
		})
	}
}
