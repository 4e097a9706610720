package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register/", h.Register)
		authGroup.POST("/login/", h.Login)
		authGroup.POST("/refresh/", h.Refresh)
		authGroup.POST("/logout/", requireAuth, h.Logout)
	}
}
