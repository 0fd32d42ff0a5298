package service_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
	"searchlens.app/analyzer/internal/store"
)

var _ = Describe("ShareService", func() {
	var (
		svc        service.ShareService
		shareStore *mockShareStore
		snapStore  *mockSnapshotStore
		ctx        context.Context
		snap       *model.Snapshot
	)

	const workspaceID int64 = 9

	BeforeEach(func() {
		ctx = context.Background()
		shareStore = &mockShareStore{}
		snapStore = &mockSnapshotStore{}

		snap = &model.Snapshot{
			ID:          61,
			WorkspaceID: workspaceID,
			Pages:       []model.PageRecord{{Page: "https://example.com/a", Clicks: 5, Impressions: 100}},
		}
		snapStore.getByIDFn = func(_ context.Context, wid, sid int64) (*model.Snapshot, error) {
			if wid == workspaceID && sid == snap.ID {
				return snap, nil
			}
			return nil, store.ErrNotFound
		}

		svc = service.NewShareService(shareStore, snapStore, "https://app.searchlens.test")
	})

	Describe("Create", func() {
		It("mints a tokened link to an existing snapshot", func() {
			var created *model.Share
			shareStore.createFn = func(_ context.Context, s *model.Share) error {
				created = s
				return nil
			}

			share, url, err := svc.Create(ctx, workspaceID, snap.ID, 101)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(share))

			Expect(share.ID).NotTo(BeEmpty())
			Expect(share.SnapshotID).To(Equal(snap.ID))
			Expect(share.CreatedBy).To(Equal(int64(101)))
			Expect(url).To(Equal("https://app.searchlens.test/share/" + share.ID))
		})

		It("mints distinct tokens per share", func() {
			first, _, err := svc.Create(ctx, workspaceID, snap.ID, 101)
			Expect(err).NotTo(HaveOccurred())
			second, _, err := svc.Create(ctx, workspaceID, snap.ID, 101)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).NotTo(Equal(second.ID))
		})

		It("refuses a snapshot outside the workspace", func() {
			_, _, err := svc.Create(ctx, workspaceID+1, snap.ID, 101)
			Expect(err).To(MatchError(service.ErrSnapshotNotFound))
		})
	})

	Describe("Resolve", func() {
		BeforeEach(func() {
			shareStore.getByIDFn = func(_ context.Context, id string) (*model.Share, error) {
				if id == "tok-abc" {
					return &model.Share{ID: id, WorkspaceID: workspaceID, SnapshotID: snap.ID}, nil
				}
				return nil, store.ErrNotFound
			}
		})

		It("returns the linked snapshot without authentication context", func() {
			got, err := svc.Resolve(ctx, "tok-abc")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(snap.ID))
			Expect(got.Pages).To(HaveLen(1))
		})

		It("rejects an unknown token", func() {
			_, err := svc.Resolve(ctx, "tok-unknown")
			Expect(err).To(MatchError(service.ErrShareNotFound))
		})

		It("treats a dangling link as not found", func() {
			snapStore.getByIDFn = func(_ context.Context, _, _ int64) (*model.Snapshot, error) {
				return nil, store.ErrNotFound
			}
			_, err := svc.Resolve(ctx, "tok-abc")
			Expect(err).To(MatchError(service.ErrShareNotFound))
		})
	})

	Describe("Revoke", func() {
		It("deletes the share within its workspace", func() {
			var deleted string
			shareStore.deleteFn = func(_ context.Context, wid int64, id string) error {
				Expect(wid).To(Equal(workspaceID))
				deleted = id
				return nil
			}
			Expect(svc.Revoke(ctx, workspaceID, "tok-abc")).To(Succeed())
			Expect(deleted).To(Equal("tok-abc"))
		})

		It("maps a missing share", func() {
			shareStore.deleteFn = func(_ context.Context, _ int64, _ string) error {
				return store.ErrNotFound
			}
			Expect(svc.Revoke(ctx, workspaceID, "gone")).To(MatchError(service.ErrShareNotFound))
		})
	})
})
