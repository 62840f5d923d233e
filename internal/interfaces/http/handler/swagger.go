package handler

import (
	"github.com/feesettle/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SwaggerPath is where the API documentation is served
const SwaggerPath = "/swagger/*any"

// MountSwagger serves the registered OpenAPI document and its UI. Nothing is
// mounted while cfg is disabled, so the path answers 404.
func MountSwagger(routes gin.IRoutes, cfg middleware.SwaggerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	protect, err := middleware.SwaggerProtection(cfg)
	if err != nil {
		return err
	}
	routes.GET(SwaggerPath, protect, ginSwagger.WrapHandler(swaggerFiles.Handler))
	return nil
}
