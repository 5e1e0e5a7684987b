// Package status 联系人动态
// 动态按作者分组：当前用户自己的一组单独放在 Mine，其余按首次出现的顺序放在 Others
package status

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/errorx"
)

// Remote 远端动态接口
type Remote interface {
	FetchStatuses(ctx context.Context) ([]respond.StatusRespond, error)
	MarkStatusViewed(ctx context.Context, statusId string) error
	StatusViewers(ctx context.Context, statusId string) ([]respond.UserRespond, error)
}

// Conversations 解析作者资料所需的会话能力，由 chat.Engine 实现
type Conversations interface {
	SelfId(ctx context.Context) (string, error)
	ConversationCount(ctx context.Context) (int, error)
	LoadConversations(ctx context.Context) error
	LookupParticipant(ctx context.Context, userId string) (model.Participant, bool, error)
}

// Service 动态列表状态
type Service struct {
	remote Remote
	convs  Conversations

	mu      sync.Mutex
	self    model.Participant
	loading bool
	mine    *model.StatusGroup
	others  []model.StatusGroup
	viewed  map[string]struct{}
}

// NewService 构造函数
func NewService(remote Remote, convs Conversations) *Service {
	return &Service{
		remote: remote,
		convs:  convs,
		viewed: make(map[string]struct{}),
	}
}

// SetSelf 设置当前用户资料，用于展示自己的动态
func (s *Service) SetSelf(p model.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Self = true
	s.self = p
}

// Fetch 拉取并分组全部动态
// 注册表为空时先加载会话列表，以便从单聊参与者中补全作者资料
func (s *Service) Fetch(ctx context.Context) (respond.StatusFeedRespond, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	if n, err := s.convs.ConversationCount(ctx); err == nil && n == 0 {
		if err := s.convs.LoadConversations(ctx); err != nil {
			zap.L().Warn("load conversations before statuses failed", zap.Error(err))
		}
	}
	selfId, _ := s.convs.SelfId(ctx)

	list, err := s.remote.FetchStatuses(ctx)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		zap.L().Warn("fetch statuses failed", zap.Error(err))
		if !errorx.HasCode(err, errorx.CodeNetworkRequestFailed) {
			err = errorx.Wrap(err, errorx.CodeNetworkRequestFailed, "fetch statuses")
		}
		return s.Feed(), err
	}

	groups := make([]model.StatusGroup, 0)
	index := make(map[string]int)
	for _, st := range list {
		userId := st.User.Id
		if userId == "" {
			continue
		}
		i, ok := index[userId]
		if !ok {
			i = len(groups)
			index[userId] = i
			groups = append(groups, model.StatusGroup{
				User:      s.resolveAuthor(ctx, st.User.UserRespond, selfId),
				Timestamp: st.CreatedAt,
			})
		}
		groups[i].Stories = append(groups[i].Stories, st.ToStory())
	}

	var mine *model.StatusGroup
	others := make([]model.StatusGroup, 0, len(groups))
	for _, g := range groups {
		if selfId != "" && g.User.Id == selfId {
			mine = &g
			continue
		}
		others = append(others, g)
	}

	s.mu.Lock()
	s.loading = false
	s.mine = mine
	s.others = others
	s.mu.Unlock()
	zap.L().Debug("statuses loaded", zap.Int("statuses", len(list)), zap.Int("authors", len(groups)))
	return s.Feed(), nil
}

// resolveAuthor 作者只有 ID 时从单聊参与者中补全
func (s *Service) resolveAuthor(ctx context.Context, u respond.UserRespond, selfId string) model.Participant {
	if selfId != "" && u.Id == selfId {
		s.mu.Lock()
		self := s.self
		s.mu.Unlock()
		if self.Id == selfId {
			return self
		}
		p := u.ToParticipant()
		p.Self = true
		return p
	}
	if u.Username != "" {
		return u.ToParticipant()
	}
	if p, ok, err := s.convs.LookupParticipant(ctx, u.Id); err == nil && ok {
		return p
	}
	return u.ToParticipant()
}

// MarkViewed 标记动态为已读
func (s *Service) MarkViewed(ctx context.Context, statusId string) error {
	if statusId == "" {
		return errorx.New(errorx.CodeInvalidParam, "status id is empty")
	}
	if err := s.remote.MarkStatusViewed(ctx, statusId); err != nil {
		zap.L().Warn("mark status viewed failed", zap.String("status_id", statusId), zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.viewed[statusId] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Viewers 查看过某条动态的用户，失败时返回空列表
func (s *Service) Viewers(ctx context.Context, statusId string) []model.Participant {
	users, err := s.remote.StatusViewers(ctx, statusId)
	if err != nil {
		zap.L().Warn("fetch status viewers failed", zap.String("status_id", statusId), zap.Error(err))
		return []model.Participant{}
	}
	out := make([]model.Participant, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToParticipant())
	}
	return out
}

// Refresh new status 推送触发的后台刷新
func (s *Service) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DEFAULT_REQUEST_SECS*time.Second)
	defer cancel()
	if _, err := s.Fetch(ctx); err != nil {
		zap.L().Debug("status refresh failed", zap.Error(err))
	}
}

// Feed 当前动态列表
func (s *Service) Feed() respond.StatusFeedRespond {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := respond.StatusFeedRespond{
		Loading: s.loading,
		Others:  append([]model.StatusGroup{}, s.others...),
		Viewed:  make([]string, 0, len(s.viewed)),
	}
	if s.mine != nil {
		mine := *s.mine
		out.Mine = &mine
	}
	for id := range s.viewed {
		out.Viewed = append(out.Viewed, id)
	}
	slices.Sort(out.Viewed)
	return out
}

// Reset 登出时清空
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = model.Participant{}
	s.loading = false
	s.mine = nil
	s.others = nil
	clear(s.viewed)
}
