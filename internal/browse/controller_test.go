package browse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/itembrowser/internal/items"
	"github.com/stacklok/itembrowser/internal/items/mocks"
	"github.com/stacklok/itembrowser/internal/location"
	locationmocks "github.com/stacklok/itembrowser/internal/location/mocks"
)

const apiBase = "http://api.test/api/v1/items/"

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Title)
	}
	return out
}

func (r *noticeRecorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type controllerFixture struct {
	ctrl    *Controller
	client  *mocks.MockClient
	store   *location.MemoryStore
	notices *noticeRecorder
}

func newControllerFixture(t *testing.T, storedLocation string) *controllerFixture {
	t.Helper()

	mockCtrl := gomock.NewController(t)
	f := &controllerFixture{
		client:  mocks.NewMockClient(mockCtrl),
		store:   location.NewMemoryStore(storedLocation),
		notices: &noticeRecorder{},
	}
	f.ctrl = NewController(context.Background(), f.client,
		WithCodec(NewCodec(items.DefaultGroups...)),
		WithStore(f.store),
		WithNotifier(f.notices.notify),
	)
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *controllerFixture) expectList(params items.ListParams, result *items.ListResult) *gomock.Call {
	return f.client.EXPECT().ListRecords(gomock.Any(), params).Return(result, nil)
}

func (f *controllerFixture) settle(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	snap, err := f.ctrl.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func (f *controllerFixture) storedLocation(t *testing.T) string {
	t.Helper()
	loc, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return loc
}

func TestController_EndToEndPaging(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	gomock.InOrder(
		f.expectList(items.ListParams{}, &items.ListResult{
			Records: records("A", "B"),
			Next:    apiBase + "?cursor=p2",
		}),
		f.expectList(items.ListParams{Cursor: "p2"}, &items.ListResult{
			Records:  records("C"),
			Previous: apiBase,
		}),
	)

	f.ctrl.Start("")
	snap := f.settle(t)
	require.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, "p2", snap.Page.NextCursor)
	assert.Empty(t, snap.Page.PrevCursor)

	require.True(t, f.ctrl.GoNext())
	assert.Equal(t, Intent{Cursor: "p2"}, f.ctrl.Snapshot().Intent)
	assert.Equal(t, "?cursor=p2", f.ctrl.Location())
	assert.Equal(t, "?cursor=p2", f.storedLocation(t))

	snap = f.settle(t)
	assert.Equal(t, "C", snap.Page.Records[0].Name)
	// The previous link of the second page has no cursor: it is the first page
	assert.False(t, snap.Page.HasPrev())
	assert.False(t, f.ctrl.GoPrev())
	assert.False(t, f.ctrl.GoNext())
}

func TestController_GoPrev(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	gomock.InOrder(
		f.expectList(items.ListParams{Cursor: "p3", Search: "rock"}, &items.ListResult{
			Records:  records("E"),
			Previous: apiBase + "?cursor=p2&search=rock",
		}),
		f.expectList(items.ListParams{Cursor: "p2", Search: "rock"}, &items.ListResult{Records: records("D")}),
	)

	f.ctrl.Start("?cursor=p3&search=rock")
	f.settle(t)

	require.True(t, f.ctrl.GoPrev())
	snap := f.settle(t)
	assert.Equal(t, Intent{Cursor: "p2", Search: "rock"}, snap.Intent)
}

func TestController_StartResumesStoredLocation(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "?group=Secondary&search=tea")
	f.expectList(items.ListParams{Search: "tea", Group: items.GroupSecondary}, &items.ListResult{})

	f.ctrl.Start("")
	snap := f.settle(t)
	assert.Equal(t, Intent{Search: "tea", Group: items.GroupSecondary}, snap.Intent)
}

func TestController_StartPrefersExplicitLocation(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "?search=stale")
	f.expectList(items.ListParams{Group: items.GroupPrimary}, &items.ListResult{})

	f.ctrl.Start("?group=Primary&group=Secondary&bogus=1")
	f.settle(t)
	assert.Equal(t, "?group=Primary", f.storedLocation(t))
}

func TestController_StoreFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	mockCtrl := gomock.NewController(t)
	client := mocks.NewMockClient(mockCtrl)
	store := locationmocks.NewMockStore(mockCtrl)

	store.EXPECT().Load(gomock.Any()).Return("", errors.New("disk on fire"))
	store.EXPECT().Replace(gomock.Any(), "").Return(errors.New("read-only file system"))
	client.EXPECT().ListRecords(gomock.Any(), items.ListParams{}).Return(&items.ListResult{Records: records("A")}, nil)

	ctrl := NewController(context.Background(), client, WithStore(store))
	defer ctrl.Close()

	ctrl.Start("")
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	snap, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)
}

func TestController_FilterChangesResetCursor(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	f.client.EXPECT().ListRecords(gomock.Any(), gomock.Any()).Return(&items.ListResult{}, nil).AnyTimes()

	f.ctrl.SetIntent(Intent{Cursor: "p9", Search: "old", Group: items.GroupPrimary})
	f.settle(t)

	f.ctrl.SetSearch("new")
	assert.Equal(t, Intent{Search: "new", Group: items.GroupPrimary}, f.ctrl.Snapshot().Intent)
	f.settle(t)

	f.ctrl.SetIntent(Intent{Cursor: "p5", Search: "new", Group: items.GroupPrimary})
	f.settle(t)

	f.ctrl.SetGroup(items.GroupSecondary)
	assert.Equal(t, Intent{Search: "new", Group: items.GroupSecondary}, f.ctrl.Snapshot().Intent)
	f.settle(t)

	f.ctrl.SetGroup("")
	assert.Equal(t, Intent{Search: "new"}, f.ctrl.Snapshot().Intent)
	assert.Equal(t, "?search=new", f.storedLocation(t))
}

func TestController_UnknownGroupIsDropped(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	f.client.EXPECT().ListRecords(gomock.Any(), items.ListParams{Search: "rock"}).Return(&items.ListResult{}, nil).Times(2)

	f.ctrl.SetIntent(Intent{Search: "rock"})
	f.settle(t)

	f.ctrl.SetGroup("Tertiary")
	snap := f.settle(t)
	assert.Equal(t, Intent{Search: "rock"}, snap.Intent)
	assert.Equal(t, "?search=rock", f.ctrl.Location())
	assert.Equal(t, "?search=rock", f.storedLocation(t))
	assert.Equal(t, snap.Intent, NewCodec(items.DefaultGroups...).Decode(f.ctrl.Location()))
}

func TestController_GoHome(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	f.client.EXPECT().ListRecords(gomock.Any(), gomock.Any()).Return(&items.ListResult{}, nil).Times(2)

	f.ctrl.SetIntent(Intent{Cursor: "p3", Search: "x", Group: items.GroupSecondary})
	f.settle(t)

	f.ctrl.GoHome()
	snap := f.settle(t)
	assert.True(t, snap.Intent.IsHome())
	assert.Equal(t, "", f.ctrl.Location())
	assert.Equal(t, "", f.storedLocation(t))
}

func TestController_NoNavigationAcrossFilters(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	f.expectList(items.ListParams{}, &items.ListResult{Records: records("A"), Next: apiBase + "?cursor=p2"})

	release := make(chan struct{})
	f.client.EXPECT().ListRecords(gomock.Any(), items.ListParams{Search: "z"}).
		DoAndReturn(func(context.Context, items.ListParams) (*items.ListResult, error) {
			<-release
			return &items.ListResult{}, nil
		})

	f.ctrl.Start("")
	f.settle(t)

	// While the search is loading, the displayed page's cursors belong to
	// the unfiltered list
	f.ctrl.SetSearch("z")
	assert.False(t, f.ctrl.GoNext())
	close(release)
	f.settle(t)
}

func TestController_FetchErrorNotice(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	f.client.EXPECT().ListRecords(gomock.Any(), items.ListParams{}).
		Return(nil, &items.TransportError{Op: "list", StatusCode: 500, Message: "500 Internal Server Error"})

	f.ctrl.Start("")
	snap := f.settle(t)
	assert.Equal(t, StateFailed, snap.State)

	require.Eventually(t, func() bool {
		return f.notices.last().Title == "Error fetching items"
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, NoticeError, f.notices.last().Level)
}

func TestController_Delete(t *testing.T) {
	t.Parallel()

	t.Run("last record with previous page steps back", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		page := records("only")
		gomock.InOrder(
			f.expectList(items.ListParams{Cursor: "p2"}, &items.ListResult{
				Records:  page,
				Previous: apiBase + "?cursor=p1",
			}),
			f.client.EXPECT().DeleteRecord(gomock.Any(), page[0].ID).Return(nil),
			f.expectList(items.ListParams{Cursor: "p1"}, &items.ListResult{Records: records("X", "Y")}),
		)

		f.ctrl.Start("?cursor=p2")
		f.settle(t)

		require.NoError(t, f.ctrl.Delete(context.Background(), page[0].ID))
		assert.Equal(t, Intent{Cursor: "p1"}, f.ctrl.Snapshot().Intent)
		assert.Equal(t, "?cursor=p1", f.storedLocation(t))
		f.settle(t)

		n := f.notices.last()
		assert.Equal(t, "Page empty, moved to previous page", n.Title)
		assert.Equal(t, NoticeInfo, n.Level)
		assert.Equal(t, 3*time.Second, n.Duration)
	})

	t.Run("other records refresh in place", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		page := records("A", "B")
		gomock.InOrder(
			f.expectList(items.ListParams{Cursor: "p2"}, &items.ListResult{
				Records:  page,
				Previous: apiBase + "?cursor=p1",
			}),
			f.client.EXPECT().DeleteRecord(gomock.Any(), page[1].ID).Return(nil),
			f.expectList(items.ListParams{Cursor: "p2"}, &items.ListResult{Records: page[:1]}),
		)

		f.ctrl.Start("?cursor=p2")
		first := f.settle(t)

		require.NoError(t, f.ctrl.Delete(context.Background(), page[1].ID))
		snap := f.settle(t)
		assert.Equal(t, Intent{Cursor: "p2"}, snap.Intent)
		assert.Greater(t, snap.Epoch, first.Epoch)
		assert.Len(t, snap.Page.Records, 1)

		n := f.notices.last()
		assert.Equal(t, "Item deleted", n.Title)
		assert.Equal(t, NoticeSuccess, n.Level)
	})

	t.Run("failure emits a notice and keeps the page", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		page := records("A")
		f.expectList(items.ListParams{}, &items.ListResult{Records: page})
		f.client.EXPECT().DeleteRecord(gomock.Any(), page[0].ID).
			Return(&items.TransportError{Op: "delete", StatusCode: 404, Message: "404 Not Found"})

		f.ctrl.Start("")
		before := f.settle(t)

		err := f.ctrl.Delete(context.Background(), page[0].ID)
		require.Error(t, err)
		assert.True(t, items.IsNotFound(err))
		assert.Equal(t, "Error deleting item", f.notices.last().Title)
		assert.Equal(t, before.Epoch, f.ctrl.Snapshot().Epoch)
	})

	t.Run("cancelled delete is silent", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		id := uuid.New()
		f.client.EXPECT().DeleteRecord(gomock.Any(), id).
			Return(&items.CancelledError{Op: "delete", Err: context.Canceled})

		err := f.ctrl.Delete(context.Background(), id)
		require.Error(t, err)
		assert.Empty(t, f.notices.titles())
	})
}

func TestController_Create(t *testing.T) {
	t.Parallel()

	t.Run("jumps to the unfiltered first page", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		created := &items.Record{ID: uuid.New(), Name: "New", Group: items.GroupSecondary}
		input := items.Input{Name: "New", Group: items.GroupSecondary}
		gomock.InOrder(
			f.expectList(items.ListParams{Cursor: "p4", Search: "x", Group: items.GroupPrimary}, &items.ListResult{}),
			f.client.EXPECT().CreateRecord(gomock.Any(), input).Return(created, nil),
			f.expectList(items.ListParams{}, &items.ListResult{Records: []items.Record{*created}}),
		)

		f.ctrl.Start("?cursor=p4&group=Primary&search=x")
		f.settle(t)

		record, err := f.ctrl.Create(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, created, record)

		snap := f.settle(t)
		assert.True(t, snap.Intent.IsHome())
		assert.Equal(t, "New", snap.Page.Records[0].Name)
		assert.Equal(t, "", f.storedLocation(t))

		n := f.notices.last()
		assert.Equal(t, "Item Created", n.Title)
		assert.Equal(t, "Jumping to start of list to show your new item.", n.Detail)
	})

	t.Run("validation errors are returned unchanged", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		validationErr := &items.ValidationError{NonField: []string{"The fields name, group must make a unique set."}}
		f.client.EXPECT().CreateRecord(gomock.Any(), gomock.Any()).Return(nil, validationErr)

		_, err := f.ctrl.Create(context.Background(), items.Input{Name: "Dup", Group: items.GroupPrimary})
		require.Error(t, err)
		assert.Same(t, validationErr, err)
		assert.Equal(t, StateIdle, f.ctrl.Snapshot().State)
		assert.Empty(t, f.notices.titles())
	})
}

func TestController_Update(t *testing.T) {
	t.Parallel()

	t.Run("refreshes without changing intent", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		id := uuid.New()
		input := items.Input{Name: "Renamed", Group: items.GroupPrimary}
		gomock.InOrder(
			f.expectList(items.ListParams{Cursor: "p2", Search: "r"}, &items.ListResult{}),
			f.client.EXPECT().UpdateRecord(gomock.Any(), id, input).Return(&items.Record{ID: id, Name: "Renamed"}, nil),
			f.expectList(items.ListParams{Cursor: "p2", Search: "r"}, &items.ListResult{}),
		)

		f.ctrl.Start("?cursor=p2&search=r")
		first := f.settle(t)

		_, err := f.ctrl.Update(context.Background(), id, input)
		require.NoError(t, err)

		snap := f.settle(t)
		assert.Equal(t, first.Intent, snap.Intent)
		assert.Greater(t, snap.Epoch, first.Epoch)
		assert.Equal(t, "Item Updated", f.notices.last().Title)
	})

	t.Run("transport errors are returned unchanged", func(t *testing.T) {
		t.Parallel()

		f := newControllerFixture(t, "")
		id := uuid.New()
		transportErr := &items.TransportError{Op: "update", StatusCode: 500}
		f.client.EXPECT().UpdateRecord(gomock.Any(), id, gomock.Any()).Return(nil, transportErr)

		_, err := f.ctrl.Update(context.Background(), id, items.Input{Name: "x", Group: items.GroupPrimary})
		assert.Same(t, transportErr, err)
		assert.Equal(t, items.DefaultValidationMessage, items.FormMessage(err))
	})
}

func TestController_Get(t *testing.T) {
	t.Parallel()

	f := newControllerFixture(t, "")
	id := uuid.New()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.client.EXPECT().GetRecord(gomock.Any(), id).Return(&items.Record{ID: id, Name: "A", CreatedAt: &created}, nil)

	record, err := f.ctrl.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, &created, record.CreatedAt)

	missing := uuid.New()
	f.client.EXPECT().GetRecord(gomock.Any(), missing).Return(nil, &items.TransportError{Op: "get", StatusCode: 404})
	_, err = f.ctrl.Get(context.Background(), missing)
	require.Error(t, err)
	assert.True(t, items.IsNotFound(err))
}
