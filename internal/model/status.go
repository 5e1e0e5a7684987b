// Package model 定义客户端状态核心使用的领域模型
// 本文件定义联系人动态（status）模型
package model

import "time"

// Story 单条动态
type Story struct {
	Id        string    `json:"id"`
	Url       string    `json:"url"`
	Type      string    `json:"type"` // image 或 video
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusGroup 同一作者的全部动态
type StatusGroup struct {
	User      Participant `json:"user"`
	Stories   []Story     `json:"stories"`
	Timestamp time.Time   `json:"timestamp"` // 该作者第一条动态的时间
}
