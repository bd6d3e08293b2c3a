package internal

import (
	"net/http"
	"vfd/internal/controllers"
	"vfd/internal/providers"
	"vfd/internal/structures"
)

func InitRoutes(apiController *controllers.ApiController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/samples", http.HandlerFunc(apiController.SubmitSample))
	routers.Get("/list", http.HandlerFunc(apiController.ListSamples))
	routers.Post("/recompute", http.HandlerFunc(apiController.Recompute))
	routers.Get("/profile", http.HandlerFunc(apiController.GetProfile))
	routers.Get("/traits", http.HandlerFunc(apiController.GetTraits))
	routers.Get("/constraints", http.HandlerFunc(apiController.GetConstraints))
	routers.Get("/coverage", http.HandlerFunc(apiController.GetCoverage))
	routers.Post("/locks", http.HandlerFunc(apiController.SetLock))
	routers.Delete("/owner", http.HandlerFunc(apiController.DeleteOwner))
	return routers
}
