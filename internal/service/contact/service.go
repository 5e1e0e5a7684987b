// Package contact 联系人搜索
// 搜索结果独立于会话注册表，打开某个联系人的会话走 chat.Engine.AccessConversation
package contact

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

// Searcher 远端联系人搜索接口
type Searcher interface {
	SearchContacts(ctx context.Context, query string) ([]respond.UserRespond, error)
}

// Service 联系人搜索状态
// 连续输入时只保留最后一次请求的结果
type Service struct {
	remote Searcher

	mu        sync.Mutex
	query     string
	searching bool
	results   []model.Participant
	serial    uint64
}

// NewService 构造函数
func NewService(remote Searcher) *Service {
	return &Service{remote: remote}
}

// Search 按关键字搜索联系人；空关键字等同于 Clear
// 失败时清空结果并返回 NetworkRequestFailed
func (s *Service) Search(ctx context.Context, query string) ([]model.Participant, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.Clear()
		return nil, nil
	}

	s.mu.Lock()
	s.serial++
	serial := s.serial
	s.query = query
	s.searching = true
	s.mu.Unlock()

	users, err := s.remote.SearchContacts(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if serial != s.serial {
		// 已有更新的搜索或 Clear，本次结果作废
		return nil, nil
	}
	s.searching = false
	if err != nil {
		s.results = nil
		zap.L().Warn("contact search failed", zap.String("query", query), zap.Error(err))
		if !errorx.HasCode(err, errorx.CodeNetworkRequestFailed) {
			err = errorx.Wrap(err, errorx.CodeNetworkRequestFailed, "contact search")
		}
		return nil, err
	}
	s.results = make([]model.Participant, 0, len(users))
	for _, u := range users {
		s.results = append(s.results, u.ToParticipant())
	}
	return append([]model.Participant(nil), s.results...), nil
}

// Clear 清空搜索结果，并使进行中的搜索作废
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial++
	s.query = ""
	s.searching = false
	s.results = nil
}

// State 当前搜索状态
func (s *Service) State() respond.ContactSearchRespond {
	s.mu.Lock()
	defer s.mu.Unlock()
	return respond.ContactSearchRespond{
		Query:     s.query,
		Searching: s.searching,
		Results:   append([]model.Participant{}, s.results...),
	}
}
