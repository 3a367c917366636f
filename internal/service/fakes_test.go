package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ranikadev/baas-bot/internal/model"
	"github.com/ranikadev/baas-bot/internal/repository"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	creds  map[int64][]byte
	nextID int64
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[int64]*model.User{}, creds: map[int64][]byte{}}
	for i := range users {
		u := users[i]
		r.users[u.ID] = &u
		if u.ID > r.nextID {
			r.nextID = u.ID
		}
	}
	return r
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, u *model.User, encryptedCredentials []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return repository.ErrConflict
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	if encryptedCredentials != nil {
		r.creds[u.ID] = encryptedCredentials
	}
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.users {
		if u.IsActive {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) update(id int64, fn func(u *model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *fakeUserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return r.update(id, func(u *model.User) { u.IsActive = active })
}

func (r *fakeUserRepo) UpdatePreferences(ctx context.Context, id int64, prefs model.Preferences) error {
	return r.update(id, func(u *model.User) { u.Preferences = prefs })
}

func (r *fakeUserRepo) UpdateTier(ctx context.Context, id int64, tier model.Tier) error {
	return r.update(id, func(u *model.User) { u.SubscriptionTier = tier })
}

func (r *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	return r.update(id, func(u *model.User) { u.StripeCustomerID = &customerID })
}

func (r *fakeUserRepo) GetEncryptedCredentials(ctx context.Context, id int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, ok := r.creds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return blob, nil
}

func (r *fakeUserRepo) SetEncryptedCredentials(ctx context.Context, id int64, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	r.creds[id] = blob
	return nil
}

func (r *fakeUserRepo) DeleteUser(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	delete(r.creds, id)
	return nil
}

type fakePostRepo struct {
	mu     sync.Mutex
	posts  []model.Post
	nextID int64
	now    func() time.Time
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{now: time.Now}
}

func (r *fakePostRepo) CreatePost(ctx context.Context, p *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = r.now()
	r.posts = append(r.posts, *p)
	return nil
}

func (r *fakePostRepo) CountPostedInRange(ctx context.Context, userID int64, start, end time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.posts {
		if p.UserID != userID || p.Status != model.PostStatusPosted || p.PostedAt == nil {
			continue
		}
		if !p.PostedAt.Before(start) && p.PostedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (r *fakePostRepo) FirstPending(ctx context.Context, userID int64) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.UserID == userID && p.Status == model.PostStatusPending {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePostRepo) MarkPosted(ctx context.Context, postID int64, postedAt time.Time, dailyCount int, externalID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.posts {
		p := &r.posts[i]
		if p.ID == postID && p.Status == model.PostStatusPending {
			p.Status = model.PostStatusPosted
			p.PostedAt = &postedAt
			p.DailyCount = dailyCount
			p.ExternalID = externalID
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakePostRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	key := func(p model.Post) time.Time {
		if p.PostedAt != nil {
			return *p.PostedAt
		}
		return p.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakePostRepo) get(id int64) model.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			return p
		}
	}
	return model.Post{}
}

func (r *fakePostRepo) all() []model.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Post(nil), r.posts...)
}

// seedPosted inserts n posts already published at the given time.
func (r *fakePostRepo) seedPosted(userID int64, n int, at time.Time) {
	for i := 0; i < n; i++ {
		postedAt := at
		_ = r.CreatePost(context.Background(), &model.Post{
			UserID:     userID,
			Content:    "earlier",
			Status:     model.PostStatusPosted,
			PostedAt:   &postedAt,
			DailyCount: i + 1,
		})
	}
}

func (r *fakePostRepo) seedPending(userID int64, content string) int64 {
	p := &model.Post{UserID: userID, Content: content, Status: model.PostStatusPending}
	_ = r.CreatePost(context.Background(), p)
	return p.ID
}

type stubContent struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (s *stubContent) Fetch(ctx context.Context, user model.User) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text
}

type stubPublisher struct {
	mu    sync.Mutex
	fail  bool
	texts []string
	// block, when set, is waited on before returning.
	block chan struct{}
}

func (s *stubPublisher) Publish(ctx context.Context, userID int64, text string) (string, bool) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if s.fail || text == "" {
		return "", false
	}
	return "tweet-1", true
}

func (s *stubPublisher) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type recordingEvents struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (r *recordingEvents) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return "msg-1", nil
}

type recordingArchive struct {
	mu   sync.Mutex
	raws []string
}

func (a *recordingArchive) SaveGeneration(ctx context.Context, userID int64, runID, raw string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raws = append(a.raws, raw)
	return "generations/key", nil
}
