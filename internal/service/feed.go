package service

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/logger"
	"github.com/robcarmo/puppies-api/pkg/metrics"
)

// FeedItem feed 页内单项，带冗余的作者信息与互动计数。
// 计数不保证与 feed 项时间点强一致。
type FeedItem struct {
	PostID       string    `json:"post_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	AuthorAvatar string    `json:"author_avatar,omitempty"`
	Content      string    `json:"content"`
	MediaURL     string    `json:"media_url,omitempty"`
	MediaType    string    `json:"media_type,omitempty"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedPage 一页 feed；Partial 表示读超时导致提前截断
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Partial    bool       `json:"partial,omitempty"`
}

// FeedService 两路合并的读服务：物化流 + 热点作者直拉流，
// k 路堆归并出全局按 (score, post_id) 降序的单一序列
type FeedService struct {
	feedRepo   repository.FeedRepository
	postRepo   repository.PostRepository
	followRepo repository.FollowRepository
	hot        *cache.HotAuthors
	snapshots  *cache.AuthorSnapshotCache

	defaultLimit    int
	maxLimit        int
	pullConcurrency int
	pullWindow      int
	readTimeout     time.Duration
}

func NewFeedService(feedRepo repository.FeedRepository, postRepo repository.PostRepository,
	followRepo repository.FollowRepository, hot *cache.HotAuthors, snapshots *cache.AuthorSnapshotCache,
	defaultLimit, maxLimit, pullConcurrency, pullWindow int, readTimeout time.Duration) *FeedService {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if pullConcurrency <= 0 {
		pullConcurrency = 4
	}
	if pullWindow <= 0 {
		pullWindow = 50
	}
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	return &FeedService{feedRepo: feedRepo, postRepo: postRepo, followRepo: followRepo,
		hot: hot, snapshots: snapshots, defaultLimit: defaultLimit, maxLimit: maxLimit,
		pullConcurrency: pullConcurrency, pullWindow: pullWindow, readTimeout: readTimeout}
}

// feedRef 归并阶段的轻量引用，详情在出页前批量水合
type feedRef struct {
	postID   string
	sourceID string
	score    int64
}

// feedSource 单路有序流；Prime 预取首页，Next 耗尽返回 nil
type feedSource interface {
	Prime(ctx context.Context) error
	Next(ctx context.Context) (*feedRef, error)
}

// GetFeed 读取一页 feed。超过整体 deadline 时返回已合并的部分页。
func (s *FeedService) GetFeed(ctx context.Context, userID, cursorStr string, limit int) (*FeedPage, error) {
	started := time.Now()
	defer func() { metrics.FeedReadLatency.Observe(time.Since(started).Seconds()) }()

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	sources, err := s.openSources(ctx, userID, cur)
	if err != nil {
		return nil, err
	}

	refs, partial, err := s.merge(ctx, sources, limit)
	if err != nil {
		return nil, err
	}
	if partial {
		metrics.FeedPartialPages.Inc()
	}

	items, err := s.hydrate(ctx, refs)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Items: items, Partial: partial}
	// 整页或被 deadline 截断的部分页都给游标，客户端可以续读
	switch {
	case len(refs) > 0 && (len(refs) >= limit || partial):
		last := refs[len(refs)-1]
		page.NextCursor = EncodeCursor(last.score, last.postID)
	case partial:
		// 一条都没合并出来：原样返回请求游标，客户端从原位置重试
		page.NextCursor = cursorStr
	}
	return page, nil
}

// openSources 物化流 1 路 + 每个热点关注对象 1 路，并发预取首批（受并发上限约束）
func (s *FeedService) openSources(ctx context.Context, userID string, cur Cursor) ([]feedSource, error) {
	followees, err := s.followRepo.ListFolloweeIDs(ctx, userID)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// deadline 已耗尽也要给出部分页而不是报错
		followees = nil
	}
	hotAuthors, err := s.hot.Filter(ctx, followees)
	if err != nil {
		// 热点集合不可用时降级为纯物化路径
		logger.Warn("hot author filter failed, materialized-only read", zap.Error(err))
		hotAuthors = nil
	}

	sources := make([]feedSource, 0, len(hotAuthors)+1)
	sources = append(sources, &entrySource{svc: s, userID: userID, before: cur, pageSize: s.pullWindow})
	for _, author := range hotAuthors {
		sources = append(sources, &authorSource{svc: s, authorID: author, before: cur, pageSize: s.pullWindow})
	}

	// 有界并发预取，避免关注数不可控时压垮帖子存储
	sem := make(chan struct{}, s.pullConcurrency)
	errs := make(chan error, len(sources))
	for _, src := range sources {
		sem <- struct{}{}
		go func(src feedSource) {
			defer func() { <-sem }()
			errs <- src.Prime(ctx)
		}(src)
	}
	for range sources {
		if err := <-errs; err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return sources, nil
}

// merge k 路堆归并，页内按 post_id 去重（同一帖可能同时经物化路与拉取路到达）
func (s *FeedService) merge(ctx context.Context, sources []feedSource, limit int) ([]*feedRef, bool, error) {
	h := &refHeap{}
	heap.Init(h)
	partial := false
	for _, src := range sources {
		ref, err := src.Next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			partial = true
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if ref != nil {
			heap.Push(h, srcRef{ref: ref, src: src})
		}
	}

	refs := make([]*feedRef, 0, limit)
	seen := make(map[string]struct{}, limit)
	for h.Len() > 0 && len(refs) < limit {
		if ctx.Err() != nil {
			return refs, true, nil
		}
		top := heap.Pop(h).(srcRef)
		if _, dup := seen[top.ref.postID]; !dup {
			seen[top.ref.postID] = struct{}{}
			refs = append(refs, top.ref)
		}
		next, err := top.src.Next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return refs, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if next != nil {
			heap.Push(h, srcRef{ref: next, src: top.src})
		}
	}
	return refs, partial, nil
}

// hydrate 批量加载帖子与作者快照；deadline 已超时时换一个短的兜底 ctx 完成水合
func (s *FeedService) hydrate(ctx context.Context, refs []*feedRef) ([]FeedItem, error) {
	if len(refs) == 0 {
		return []FeedItem{}, nil
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
		defer cancel()
	}

	postIDs := make([]string, len(refs))
	for i, r := range refs {
		postIDs[i] = r.postID
	}
	posts, err := s.postRepo.GetByIDs(ctx, postIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Post, len(posts))
	authorSet := make(map[string]struct{})
	for _, p := range posts {
		byID[p.ID] = p
		authorSet[p.AuthorID] = struct{}{}
	}
	authorIDs := make([]string, 0, len(authorSet))
	for id := range authorSet {
		authorIDs = append(authorIDs, id)
	}
	snaps, err := s.snapshots.GetMany(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(refs))
	for _, r := range refs {
		p, ok := byID[r.postID]
		if !ok {
			// 帖子在归并与水合之间被删除
			continue
		}
		item := FeedItem{
			PostID:       p.ID,
			AuthorID:     p.AuthorID,
			Content:      p.Content,
			MediaURL:     p.MediaURL,
			MediaType:    p.MediaType,
			LikeCount:    p.LikeCount,
			CommentCount: p.CommentCount,
			CreatedAt:    p.CreatedAt,
		}
		if snap, ok := snaps[p.AuthorID]; ok {
			item.AuthorName = snap.Username
			item.AuthorAvatar = snap.AvatarURL
		}
		items = append(items, item)
	}
	return items, nil
}

// entrySource 物化 feed 项的分页流
type entrySource struct {
	svc      *FeedService
	userID   string
	before   Cursor
	pageSize int

	buf     []*feedRef
	idx     int
	drained bool
}

func (e *entrySource) Prime(ctx context.Context) error {
	if e.idx < len(e.buf) || e.drained {
		return nil
	}
	return e.fill(ctx)
}

func (e *entrySource) fill(ctx context.Context) error {
	entries, err := e.svc.feedRepo.ListByUserBefore(ctx, e.userID, e.before.Score, e.before.PostID, e.pageSize)
	if err != nil {
		return err
	}
	if len(entries) < e.pageSize {
		e.drained = true
	}
	e.buf = make([]*feedRef, len(entries))
	for i, en := range entries {
		e.buf[i] = &feedRef{postID: en.PostID, sourceID: en.SourceUserID, score: en.Score}
	}
	e.idx = 0
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		e.before = Cursor{Score: last.Score, PostID: last.PostID}
	}
	return nil
}

func (e *entrySource) Next(ctx context.Context) (*feedRef, error) {
	if e.idx >= len(e.buf) {
		if e.drained {
			return nil, nil
		}
		if err := e.fill(ctx); err != nil {
			return nil, err
		}
		if len(e.buf) == 0 {
			return nil, nil
		}
	}
	ref := e.buf[e.idx]
	e.idx++
	return ref, nil
}

// authorSource 热点作者帖子的分页流（拉模式路径）
type authorSource struct {
	svc      *FeedService
	authorID string
	before   Cursor
	pageSize int

	buf     []*feedRef
	idx     int
	drained bool
}

func (a *authorSource) Prime(ctx context.Context) error {
	if a.idx < len(a.buf) || a.drained {
		return nil
	}
	return a.fill(ctx)
}

func (a *authorSource) fill(ctx context.Context) error {
	posts, err := a.svc.postRepo.ListByAuthorBefore(ctx, a.authorID, a.before.Score, a.before.PostID, a.pageSize)
	if err != nil {
		return err
	}
	if len(posts) < a.pageSize {
		a.drained = true
	}
	a.buf = make([]*feedRef, len(posts))
	for i, p := range posts {
		a.buf[i] = &feedRef{postID: p.ID, sourceID: p.AuthorID, score: p.CreatedAt.UnixNano()}
	}
	a.idx = 0
	if len(posts) > 0 {
		last := posts[len(posts)-1]
		a.before = Cursor{Score: last.CreatedAt.UnixNano(), PostID: last.ID}
	}
	return nil
}

func (a *authorSource) Next(ctx context.Context) (*feedRef, error) {
	if a.idx >= len(a.buf) {
		if a.drained {
			return nil, nil
		}
		if err := a.fill(ctx); err != nil {
			return nil, err
		}
		if len(a.buf) == 0 {
			return nil, nil
		}
	}
	ref := a.buf[a.idx]
	a.idx++
	return ref, nil
}

// srcRef 堆元素：当前引用与其所属流
type srcRef struct {
	ref *feedRef
	src feedSource
}

// refHeap (score, post_id) 降序的最大堆
type refHeap []srcRef

func (h refHeap) Len() int { return len(h) }
func (h refHeap) Less(i, j int) bool {
	if h[i].ref.score != h[j].ref.score {
		return h[i].ref.score > h[j].ref.score
	}
	return h[i].ref.postID > h[j].ref.postID
}
func (h refHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *refHeap) Push(x interface{}) { *h = append(*h, x.(srcRef)) }
func (h *refHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
