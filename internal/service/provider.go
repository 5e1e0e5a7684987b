// Package service 提供业务逻辑层
// 本文件实现 Service 层的聚合
package service

import (
	"kama_chat_client/internal/service/chat"
	"kama_chat_client/internal/service/contact"
	"kama_chat_client/internal/service/status"
)

// Services 聚合桥接层使用的全部 Service
type Services struct {
	Chat    ChatService
	Contact ContactService
	Status  StatusService
}

// NewServices 聚合已构造好的 Service
// status 订阅引擎的 new status 推送，收到后后台刷新
func NewServices(engine *chat.Engine, contactSvc *contact.Service, statusSvc *status.Service) *Services {
	engine.OnNewStatus(statusSvc.Refresh)
	return &Services{
		Chat:    engine,
		Contact: contactSvc,
		Status:  statusSvc,
	}
}
