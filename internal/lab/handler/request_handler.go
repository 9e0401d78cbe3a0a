package handler

import (
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
	"github.com/Async-Ng/ElecLab-sub001/internal/routing"
	"github.com/gin-gonic/gin"
)

// RequestHandler 统一请求处理器
type RequestHandler struct {
	svc *service.RequestService
}

// NewRequestHandler 创建统一请求处理器
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

func listInput(c *gin.Context) service.ListRequestsInput {
	page, pageSize := GetPagination(c)
	in := service.ListRequestsInput{
		Scope:    service.ScopeOwn,
		Type:     c.Query("type"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Keyword:  c.Query("keyword"),
		Page:     page,
		PageSize: pageSize,
	}
	if routeScope(c) == routing.ScopeElevated {
		in.Scope = service.ScopeAll
	}
	return in
}

// List GET /{scope}/requests
func (h *RequestHandler) List(c *gin.Context) {
	caller, _ := GetIdentity(c)
	result, err := h.svc.List(c.Request.Context(), caller, listInput(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, result)
}

// Get GET /{scope}/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	caller, _ := GetIdentity(c)
	req, err := h.svc.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, req)
}

// Activities GET /{scope}/requests/:id/activities
func (h *RequestHandler) Activities(c *gin.Context) {
	caller, _ := GetIdentity(c)
	items, err := h.svc.ListActivities(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Create POST /{scope}/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var in service.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	caller, _ := GetIdentity(c)
	req, err := h.svc.Create(c.Request.Context(), caller, in)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, req)
}

// Update PUT /{scope}/requests/:id
func (h *RequestHandler) Update(c *gin.Context) {
	var in service.UpdateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	caller, _ := GetIdentity(c)
	req, err := h.svc.Update(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, req)
}

// Delete DELETE /{scope}/requests/:id
func (h *RequestHandler) Delete(c *gin.Context) {
	caller, _ := GetIdentity(c)
	if err := h.svc.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"id": c.Param("id")})
}

// Review PUT /{scope}/requests/:id/review
func (h *RequestHandler) Review(c *gin.Context) {
	var in service.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	caller, _ := GetIdentity(c)
	req, err := h.svc.Review(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, req)
}

// Handle PUT /{scope}/requests/:id/handle
func (h *RequestHandler) Handle(c *gin.Context) {
	caller, _ := GetIdentity(c)
	req, err := h.svc.Handle(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, req)
}

// Complete PUT /{scope}/requests/:id/complete
func (h *RequestHandler) Complete(c *gin.Context) {
	var in service.CompleteInput
	// body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			BadRequest(c, "参数错误: "+err.Error())
			return
		}
	}
	caller, _ := GetIdentity(c)
	req, err := h.svc.Complete(c.Request.Context(), caller, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, req)
}

// Export GET /{scope}/requests/export
func (h *RequestHandler) Export(c *gin.Context) {
	caller, _ := GetIdentity(c)
	f, filename, err := h.svc.Export(c.Request.Context(), caller, listInput(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
