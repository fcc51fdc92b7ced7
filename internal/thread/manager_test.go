package thread

import (
	"CommentThread/internal/models"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchComments(ctx context.Context, postID string, limit, offset int) (*models.CommentPage, error) {
	args := m.Called(ctx, postID, limit, offset)
	p, _ := args.Get(0).(*models.CommentPage)
	return p, args.Error(1)
}

func (m *mockBackend) CreateComment(ctx context.Context, postID, content string, parentID *string, images []string) (*models.CommentRecord, error) {
	args := m.Called(ctx, postID, content, parentID, images)
	r, _ := args.Get(0).(*models.CommentRecord)
	return r, args.Error(1)
}

func (m *mockBackend) UpdateComment(ctx context.Context, commentID, content string, images []string) (*models.CommentRecord, error) {
	args := m.Called(ctx, commentID, content, images)
	r, _ := args.Get(0).(*models.CommentRecord)
	return r, args.Error(1)
}

func (m *mockBackend) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	args := m.Called(ctx, commentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) ToggleCommentLike(ctx context.Context, commentID string) (*models.LikeState, error) {
	args := m.Called(ctx, commentID)
	l, _ := args.Get(0).(*models.LikeState)
	return l, args.Error(1)
}

type remoteMsgErr struct{ msg string }

func (e remoteMsgErr) Error() string       { return "backend: " + e.msg }
func (e remoteMsgErr) UserMessage() string { return e.msg }

// newLoadedManager returns a manager whose tree holds a (depth 0) -> b
// (depth 1) -> b1 (depth 2) -> b1x (depth 3), plus root c.
func newLoadedManager(t *testing.T, backend *mockBackend, opts Options) *Manager {
	t.Helper()
	opts.PostID = "post-1"
	opts.Viewer = models.CommentAuthor{ID: "viewer", DisplayName: "Viewer"}
	opts.NewID = func() string { return "1" }
	opts.Now = func() time.Time { return ts("2024-06-01") }
	if opts.PageSize == 0 {
		opts.PageSize = 10
	}
	m := NewManager(backend, opts, zap.NewNop())

	backend.On("FetchComments", mock.Anything, "post-1", opts.PageSize, 0).Return(page(false,
		row("a", "", 0, "2024-01-02"),
		row("b", "a", 1, "2024-01-03"),
		row("b1", "b", 2, "2024-01-04"),
		row("b1x", "b1", 3, "2024-01-05"),
		row("c", "", 0, "2024-01-06"),
	), nil).Once()
	require.NoError(t, m.Refresh(context.Background()))
	return m
}

func TestManager_ReplySucceeds(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{MaxDepth: 3})
	parent := "a"
	rec := row("srv-1", "a", 1, "2024-06-01")
	rec.Content = "hi"
	backend.On("CreateComment", mock.Anything, "post-1", "hi", &parent, []string(nil)).Return(&rec, nil).Once()

	c, err := m.Reply(context.Background(), "a", "  hi ", nil)

	require.NoError(t, err)
	assert.Equal(t, "srv-1", c.ID)
	assert.Equal(t, []string{"b", "srv-1"}, m.Tree().Replies("a"))
	assert.False(t, m.IsPending("srv-1"))
	backend.AssertExpectations(t)
}

func TestManager_ReplyAtMaxDepthNeverCallsBackend(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{MaxDepth: 3})
	before := m.Tree()

	_, err := m.Reply(context.Background(), "b1x", "too deep", nil)

	assert.ErrorIs(t, err, ErrDepthExceeded)
	assert.True(t, IsValidation(err))
	assert.Same(t, before, m.Tree())
	backend.AssertNotCalled(t, "CreateComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_ValidationRejectsBeforeNetwork(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{MaxImages: 2})
	ctx := context.Background()

	_, err := m.Create(ctx, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = m.Create(ctx, "pics", []string{"1", "2", "3"})
	assert.ErrorIs(t, err, ErrTooManyImages)

	_, err = m.Reply(ctx, "ghost", "hello", nil)
	assert.ErrorIs(t, err, ErrCommentNotFound)

	_, err = m.Edit(ctx, "a", "", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	backend.AssertNotCalled(t, "CreateComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "UpdateComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_ImagesOnlyCommentIsAccepted(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	rec := row("srv-img", "", 0, "2024-06-01")
	rec.Content = ""
	rec.Images = []string{"cat.png"}
	backend.On("CreateComment", mock.Anything, "post-1", "", (*string)(nil), []string{"cat.png"}).Return(&rec, nil).Once()

	c, err := m.Create(context.Background(), " ", []string{"cat.png"})

	require.NoError(t, err)
	assert.Equal(t, []string{"cat.png"}, c.Images)
	assert.Equal(t, "srv-img", m.Tree().Roots()[0])
}

func TestManager_FailedCreateRollsBack(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	before := m.Tree()

	var sawTemp bool
	backend.On("CreateComment", mock.Anything, "post-1", "hello", (*string)(nil), []string(nil)).
		Run(func(mock.Arguments) {
			sawTemp = m.Tree().Has("temp-1") && m.IsPending("temp-1")
		}).
		Return(nil, remoteMsgErr{msg: "You are posting too fast"}).Once()

	_, err := m.Create(context.Background(), "hello", nil)

	require.Error(t, err)
	assert.True(t, sawTemp, "optimistic comment visible while the call is in flight")
	assert.True(t, IsRemote(err))
	assert.Equal(t, "You are posting too fast", UserMessage(err))
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindCreate, re.Action)
	assert.False(t, m.Tree().Has("temp-1"))
	assert.True(t, m.Tree().Equal(before))
	assert.False(t, m.IsPending("temp-1"))
}

func TestManager_MalformedCreateResponseRollsBack(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	before := m.Tree()
	backend.On("CreateComment", mock.Anything, "post-1", "hello", (*string)(nil), []string(nil)).Return(nil, nil).Once()

	_, err := m.Create(context.Background(), "hello", nil)

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, ErrRemoteCall)
	assert.Equal(t, genericRemoteMessage, UserMessage(err))
	assert.True(t, m.Tree().Equal(before))
}

func TestManager_LikeCommitsServerState(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	backend.On("ToggleCommentLike", mock.Anything, "c").Return(&models.LikeState{IsLiked: true, LikesCount: 3}, nil).Once()

	state, err := m.ToggleLike(context.Background(), "c")

	require.NoError(t, err)
	assert.Equal(t, models.LikeState{IsLiked: true, LikesCount: 3}, state)
}

func TestManager_FailedLikeRestoresPriorState(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	before := m.Tree()
	backend.On("ToggleCommentLike", mock.Anything, "c").Return(nil, errors.New("boom")).Once()

	_, err := m.ToggleLike(context.Background(), "c")

	require.Error(t, err)
	assert.Equal(t, genericRemoteMessage, UserMessage(err))
	assert.True(t, m.Tree().Equal(before))
}

func TestManager_DeleteAndEdit(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	ctx := context.Background()

	rec := row("b", "a", 1, "2024-01-03")
	rec.Content = "better"
	backend.On("UpdateComment", mock.Anything, "b", "better", []string(nil)).Return(&rec, nil).Once()
	c, err := m.Edit(ctx, "b", "better", nil)
	require.NoError(t, err)
	assert.Equal(t, "better", c.Content)

	backend.On("DeleteComment", mock.Anything, "b").Return(true, nil).Once()
	require.NoError(t, m.Delete(ctx, "b"))
	b, _ := m.Tree().Get("b")
	assert.True(t, b.IsDeleted)
	assert.Equal(t, []string{"b1"}, m.Tree().Replies("b"))

	_, err = m.Edit(ctx, "b", "again", nil)
	assert.ErrorIs(t, err, ErrDeleted)
	_, err = m.Reply(ctx, "b", "reply to deleted", nil)
	assert.ErrorIs(t, err, ErrDeleted)
}

func TestManager_DeleteReportedUnsuccessfulRollsBack(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	before := m.Tree()
	backend.On("DeleteComment", mock.Anything, "a").Return(false, nil).Once()

	err := m.Delete(context.Background(), "a")

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.True(t, m.Tree().Equal(before))
}

func TestManager_MutationTimeoutRollsBack(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{MutationTimeout: 10 * time.Millisecond})
	before := m.Tree()
	backend.On("DeleteComment", mock.Anything, "a").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(false, context.DeadlineExceeded).Once()

	err := m.Delete(context.Background(), "a")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, m.Tree().Equal(before))
}

func TestManager_ActionsOnPendingCommentAreRejected(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	release := make(chan struct{})
	rec := row("srv-1", "", 0, "2024-06-01")
	backend.On("CreateComment", mock.Anything, "post-1", "slow", (*string)(nil), []string(nil)).
		Run(func(mock.Arguments) { <-release }).
		Return(&rec, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Create(context.Background(), "slow", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return m.IsPending("temp-1") }, time.Second, time.Millisecond)

	_, err := m.ToggleLike(context.Background(), "temp-1")
	assert.ErrorIs(t, err, ErrPending)
	_, err = m.Reply(context.Background(), "temp-1", "child", nil)
	assert.ErrorIs(t, err, ErrPending)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "srv-1", m.Tree().Roots()[0])
}

func TestManager_LoadMoreAppendsAndStops(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(backend, Options{PostID: "p", PageSize: 2}, zap.NewNop())
	ctx := context.Background()

	backend.On("FetchComments", mock.Anything, "p", 2, 0).Return(page(true,
		row("a", "", 0, "2024-01-05"),
		row("b", "", 0, "2024-01-04"),
	), nil).Once()
	backend.On("FetchComments", mock.Anything, "p", 2, 2).Return(page(true,
		row("c", "", 0, "2024-01-03"),
	), nil).Once()

	require.NoError(t, m.LoadMore(ctx))
	require.NoError(t, m.LoadMore(ctx))
	require.NoError(t, m.LoadMore(ctx))

	s := m.State()
	assert.Equal(t, []string{"a", "b", "c"}, s.Tree.Roots())
	assert.False(t, s.HasMore)
	assert.Equal(t, 3, s.Offset)
	backend.AssertExpectations(t)
}

func TestManager_LoadFailureKeepsTree(t *testing.T) {
	backend := &mockBackend{}
	var changes int
	m := newLoadedManager(t, backend, Options{OnChange: func(*Tree) { changes++ }})
	before := m.Tree()
	seen := changes
	backend.On("FetchComments", mock.Anything, "post-1", 10, 0).Return(nil, errors.New("offline")).Once()

	err := m.Refresh(context.Background())

	assert.True(t, IsRemote(err))
	assert.Same(t, before, m.Tree())
	assert.Equal(t, seen, changes)
}

func TestManager_FailedEditKeepsLikeConfirmedMeanwhile(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	release := make(chan struct{})
	backend.On("UpdateComment", mock.Anything, "c", "edited", []string(nil)).
		Run(func(mock.Arguments) { <-release }).
		Return(nil, errors.New("boom")).Once()
	backend.On("ToggleCommentLike", mock.Anything, "c").
		Return(&models.LikeState{IsLiked: true, LikesCount: 1}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Edit(context.Background(), "c", "edited", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return m.IsPending("c") }, time.Second, time.Millisecond)

	_, err := m.ToggleLike(context.Background(), "c")
	require.NoError(t, err)

	close(release)
	assert.True(t, IsRemote(<-done))

	c, _ := m.Tree().Get("c")
	assert.Equal(t, "comment c", c.Content)
	assert.True(t, c.IsLiked)
	assert.Equal(t, 1, c.LikesCount)
}

func TestManager_ReplyConfirmedAfterParentDropped(t *testing.T) {
	backend := &mockBackend{}
	m := newLoadedManager(t, backend, Options{})
	release := make(chan struct{})
	parent := "b"
	rec := row("srv-1", "b", 2, "2024-06-01")
	backend.On("CreateComment", mock.Anything, "post-1", "late", &parent, []string(nil)).
		Run(func(mock.Arguments) { <-release }).
		Return(&rec, nil).Once()

	done := make(chan error, 1)
	var got models.Comment
	go func() {
		var err error
		got, err = m.Reply(context.Background(), "b", "late", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return m.IsPending("temp-1") }, time.Second, time.Millisecond)

	backend.On("FetchComments", mock.Anything, "post-1", 10, 0).Return(page(false,
		row("z", "", 0, "2024-07-01"),
	), nil).Once()
	require.NoError(t, m.Refresh(context.Background()))

	close(release)
	err := <-done
	assert.ErrorIs(t, err, ErrNotShown)
	assert.False(t, IsRemote(err))
	assert.Equal(t, "srv-1", got.ID)
	assert.False(t, m.Tree().Has("srv-1"))
}

func TestManager_PageSizeCappedToServerLimit(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(backend, Options{PostID: "p", PageSize: 500}, zap.NewNop())

	assert.Equal(t, MaxPageSize, m.State().PageSize)
}
