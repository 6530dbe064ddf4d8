package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/okarpov/imgpress/internal/api/handlers/batch"
	"github.com/okarpov/imgpress/internal/middleware"
)

func Setup(h *batch.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/items", h.Upload)             // ingesting a file selection
	api.GET("/items", h.List)                // observable queue state
	api.DELETE("/items/:id", h.Remove)       // removing one item
	api.DELETE("/items", h.ClearAll)         // clearing the queue
	api.PUT("/preset", h.SetPreset)          // switching the output preset
	api.POST("/convert", h.Submit)           // converting the full queue
	api.GET("/items/:id/result", h.Download) // downloading a converted item

	return r
}
