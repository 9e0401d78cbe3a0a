package handler

import (
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
	"github.com/gin-gonic/gin"
)

// CatalogHandler 目录处理器
type CatalogHandler struct {
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

func (h *CatalogHandler) Materials(c *gin.Context) {
	items, err := h.svc.ListMaterials(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

func (h *CatalogHandler) Rooms(c *gin.Context) {
	items, err := h.svc.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

func (h *CatalogHandler) Users(c *gin.Context) {
	items, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}
