/*
Package payment - 支付单 API 控制器

参数绑定错误走 response.HandleError (400)；业务错误走 response.HandleAppError，
按错误码映射状态码。命令执行成功但结果可重试时返回 202，由批量任务继续推进。
*/
package payment

import (
	"net/http"

	"paytx/api/ctxutil"
	"paytx/api/response"
	payapp "paytx/application/payment"
	"paytx/application/txn"

	"github.com/gin-gonic/gin"
)

// Controller 支付单控制器
type Controller struct {
	service *payapp.Service
}

// NewController 创建支付单控制器
func NewController(service *payapp.Service) *Controller {
	return &Controller{service: service}
}

// RegisterRoutes 注册支付单路由
func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/payments")
	{
		group.POST("", c.Accept)
		group.POST("/pay", c.Pay)
		group.POST("/notify", c.Notify)
		group.POST("/callback", c.Callback)
		group.GET("/:biz_identify/:biz_unique_no", c.Get)
	}
}

// Accept 受理支付
// POST /api/v1/payments
func (c *Controller) Accept(ctx *gin.Context) {
	var cmd payapp.AcceptCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		response.HandleError(ctx, err, "invalid request parameters", http.StatusBadRequest)
		return
	}

	m, err := c.service.Accept(ctxutil.RequestContext(ctx), cmd)
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	if m.Idempotent {
		response.HandleSuccess(ctx, payapp.ToResult(m), "payment already accepted")
		return
	}
	response.HandleCreated(ctx, payapp.ToResult(m), "payment accepted")
}

// Pay 发起渠道支付
// POST /api/v1/payments/pay
func (c *Controller) Pay(ctx *gin.Context) {
	var cmd payapp.PayCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		response.HandleError(ctx, err, "invalid request parameters", http.StatusBadRequest)
		return
	}

	m, err := c.service.Pay(ctxutil.RequestContext(ctx), cmd)
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	respond(ctx, m, "payment executed")
}

// Notify 推送结果通知
// POST /api/v1/payments/notify
func (c *Controller) Notify(ctx *gin.Context) {
	var cmd payapp.NotifyCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		response.HandleError(ctx, err, "invalid request parameters", http.StatusBadRequest)
		return
	}

	m, err := c.service.Notify(ctxutil.RequestContext(ctx), cmd)
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	respond(ctx, m, "notification sent")
}

// Callback 渠道异步回调
// POST /api/v1/payments/callback
func (c *Controller) Callback(ctx *gin.Context) {
	var cmd payapp.CallbackCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		response.HandleError(ctx, err, "invalid request parameters", http.StatusBadRequest)
		return
	}

	m, err := c.service.Callback(ctxutil.RequestContext(ctx), cmd)
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	respond(ctx, m, "callback applied")
}

// Get 按业务键查询支付单
// GET /api/v1/payments/:biz_identify/:biz_unique_no
func (c *Controller) Get(ctx *gin.Context) {
	o, err := c.service.Get(ctxutil.RequestContext(ctx), ctx.Param("biz_identify"), ctx.Param("biz_unique_no"))
	if err != nil {
		response.HandleAppError(ctx, err)
		return
	}
	response.HandleSuccess(ctx, payapp.ToOrderResponse(o), "payment retrieved")
}

func respond(ctx *gin.Context, m *txn.Model, message string) {
	if !m.Success {
		response.HandleAccepted(ctx, payapp.ToResult(m), "retry scheduled")
		return
	}
	response.HandleSuccess(ctx, payapp.ToResult(m), message)
}
