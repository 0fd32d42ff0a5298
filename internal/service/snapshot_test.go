package service_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"searchlens.app/analyzer/common/id"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/ingest"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
	"searchlens.app/analyzer/internal/store"
)

var _ = Describe("SnapshotService", func() {
	var (
		svc       service.SnapshotService
		snapStore *mockSnapshotStore
		settings  *mockSettingsStore
		shares    *mockShareStore
		bus       *mockPublisher
		ctx       context.Context
	)

	const workspaceID int64 = 77

	BeforeEach(func() {
		ctx = context.Background()
		snapStore = &mockSnapshotStore{}
		settings = &mockSettingsStore{}
		shares = &mockShareStore{}
		bus = &mockPublisher{}

		err := id.Init(1)
		Expect(err).NotTo(HaveOccurred())

		txRunner := &mockTxRunner{provider: &mockStoreProvider{
			snapshots: snapStore,
			settings:  settings,
			shares:    shares,
		}}
		svc = service.NewSnapshotService(snapStore, settings, txRunner, bus)
	})

	Describe("Ingest", func() {
		const csv = "Page,Clicks,Impressions\nhttps://example.com/a,10,200\n"

		It("creates a snapshot from a CSV export and auto-selects it", func() {
			var created *model.Snapshot
			snapStore.createFn = func(_ context.Context, snap *model.Snapshot) error {
				created = snap
				return nil
			}
			var promotedID int64
			settings.setActiveSnapshotIfUnsetFn = func(_ context.Context, wsID, snapID int64) (bool, error) {
				Expect(wsID).To(Equal(workspaceID))
				promotedID = snapID
				return true, nil
			}

			snap, err := svc.Ingest(ctx, workspaceID, "export.csv", strings.NewReader(csv))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).NotTo(BeNil())
			Expect(snap.FileName).To(Equal("export.csv"))
			Expect(snap.Pages).To(HaveLen(1))
			Expect(promotedID).To(Equal(snap.ID))

			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].Entity).To(Equal(events.EntitySnapshot))
			Expect(bus.events[0].Action).To(Equal(events.ActionCreated))
		})

		It("rejects an unrecognized export format", func() {
			_, err := svc.Ingest(ctx, workspaceID, "bad.csv", strings.NewReader("Keyword,Volume\nfoo,1\n"))
			var formatErr *ingest.FormatError
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(formatErr))
		})
	})

	Describe("GetActive", func() {
		It("returns the snapshot the pointer references", func() {
			snapID := int64(5)
			settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
				return &model.WorkspaceSettings{WorkspaceID: workspaceID, ActiveSnapshotID: &snapID}, nil
			}
			snapStore.getByIDFn = func(_ context.Context, _, sid int64) (*model.Snapshot, error) {
				Expect(sid).To(Equal(snapID))
				return &model.Snapshot{ID: sid, WorkspaceID: workspaceID}, nil
			}

			snap, err := svc.GetActive(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ID).To(Equal(snapID))
		})

		It("promotes the most recent snapshot when the pointer is unset", func() {
			recent := model.Snapshot{ID: 9, WorkspaceID: workspaceID, CreatedAt: time.Now()}
			older := model.Snapshot{ID: 3, WorkspaceID: workspaceID, CreatedAt: time.Now().Add(-time.Hour)}
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{recent, older}, nil
			}

			getWorkspaceCalls := 0
			written := int64(0)
			settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
				getWorkspaceCalls++
				if written != 0 {
					return &model.WorkspaceSettings{WorkspaceID: workspaceID, ActiveSnapshotID: &written}, nil
				}
				return nil, store.ErrNotFound
			}
			settings.setActiveSnapshotIfUnsetFn = func(_ context.Context, _, sid int64) (bool, error) {
				written = sid
				return true, nil
			}
			snapStore.getByIDFn = func(_ context.Context, _, sid int64) (*model.Snapshot, error) {
				Expect(sid).To(Equal(recent.ID))
				return &recent, nil
			}

			snap, err := svc.GetActive(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ID).To(Equal(recent.ID))
			Expect(getWorkspaceCalls).To(BeNumerically(">=", 2))
		})

		It("returns the concurrent winner when the conditional write loses", func() {
			// Two selectors race: this one loses the conditional write
			// and must converge on the other's choice.
			winner := int64(12)
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return []model.Snapshot{{ID: 9, WorkspaceID: workspaceID}}, nil
			}
			first := true
			settings.getWorkspaceFn = func(_ context.Context, _ int64) (*model.WorkspaceSettings, error) {
				if first {
					first = false
					return nil, store.ErrNotFound
				}
				return &model.WorkspaceSettings{WorkspaceID: workspaceID, ActiveSnapshotID: &winner}, nil
			}
			settings.setActiveSnapshotIfUnsetFn = func(_ context.Context, _, _ int64) (bool, error) {
				return false, nil // another selector already wrote
			}
			snapStore.getByIDFn = func(_ context.Context, _, sid int64) (*model.Snapshot, error) {
				return &model.Snapshot{ID: sid, WorkspaceID: workspaceID}, nil
			}

			snap, err := svc.GetActive(ctx, workspaceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.ID).To(Equal(winner))
		})

		It("reports missing data when the workspace has no snapshots", func() {
			snapStore.listByWorkspaceFn = func(_ context.Context, _ int64) ([]model.Snapshot, error) {
				return nil, nil
			}

			_, err := svc.GetActive(ctx, workspaceID)
			Expect(err).To(MatchError(service.ErrNoActiveData))
			Expect(err.Error()).To(Equal("No active data to analyze."))
		})
	})

	Describe("Delete", func() {
		It("removes shares and clears the active pointer with the snapshot", func() {
			var deletedShares, clearedPointer, deletedSnap bool
			shares.deleteBySnapshotFn = func(_ context.Context, _, _ int64) error {
				deletedShares = true
				return nil
			}
			settings.clearActiveSnapshotIfFn = func(_ context.Context, _, _ int64) error {
				clearedPointer = true
				return nil
			}
			snapStore.deleteFn = func(_ context.Context, _, _ int64) error {
				deletedSnap = true
				return nil
			}

			Expect(svc.Delete(ctx, workspaceID, 5)).To(Succeed())
			Expect(deletedShares).To(BeTrue())
			Expect(clearedPointer).To(BeTrue())
			Expect(deletedSnap).To(BeTrue())
			Expect(bus.events).To(HaveLen(1))
			Expect(bus.events[0].Action).To(Equal(events.ActionDeleted))
		})

		It("maps a missing snapshot to ErrSnapshotNotFound", func() {
			snapStore.deleteFn = func(_ context.Context, _, _ int64) error {
				return store.ErrNotFound
			}
			Expect(svc.Delete(ctx, workspaceID, 5)).To(MatchError(service.ErrSnapshotNotFound))
		})
	})

	Describe("SetActive", func() {
		It("rejects a snapshot from another workspace", func() {
			snapStore.getByIDFn = func(_ context.Context, wsID, _ int64) (*model.Snapshot, error) {
				Expect(wsID).To(Equal(workspaceID))
				return nil, store.ErrNotFound
			}
			err := svc.SetActive(ctx, workspaceID, 999)
			Expect(err).To(MatchError(service.ErrSnapshotNotFound))
		})
	})

	Describe("SetDateRange", func() {
		It("rejects an inverted range", func() {
			dr := model.DateRange{Start: time.Now(), End: time.Now().Add(-24 * time.Hour)}
			err := svc.SetDateRange(ctx, workspaceID, 5, dr)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid date range"))
		})
	})
})
