package api

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"

	"dialogeval/internal/api/middleware"
	"dialogeval/internal/models"
)

func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	// Health endpoint
	ws.
		Route(ws.GET("health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	// The run POSTs carry no body, so any (or no) content type is accepted.
	ws.
		Route(ws.POST("/runs/{run_id}/start").
			To(handler.StartRun).
			Consumes("*/*").
			Doc("Start executing a pending test run").
			Metadata(restfulspec.KeyOpenAPITags, []string{"runs"}).
			Param(ws.PathParameter("run_id", "Test run ID").DataType("integer")).
			Writes(StartResponse{}).
			Returns(202, "Accepted", StartResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/runs/{run_id}/cancel").
			To(handler.CancelRun).
			Consumes("*/*").
			Doc("Request cooperative cancellation of a run").
			Metadata(restfulspec.KeyOpenAPITags, []string{"runs"}).
			Param(ws.PathParameter("run_id", "Test run ID").DataType("integer")).
			Writes(StartResponse{}).
			Returns(200, "OK", StartResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(409, "Conflict", middleware.ErrorResponse{}))

	ws.
		Route(ws.GET("/runs/{run_id}/progress").
			To(handler.RunProgress).
			Doc("Live progress of a run").
			Metadata(restfulspec.KeyOpenAPITags, []string{"runs"}).
			Param(ws.PathParameter("run_id", "Test run ID").DataType("integer")).
			Writes(models.RunProgress{}).
			Returns(200, "OK", models.RunProgress{}).
			Returns(404, "Not Found", middleware.ErrorResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	container.Add(ws)
}
