package namespace

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/acqgw/ag/internal/msclient"
)

var _ = Describe("DownloadMSFSMap", func() {
	var (
		ms *msclient.Fake
		fs *AGFS
	)

	BeforeEach(func() {
		ms = msclient.NewFake()
		ms.Put(msclient.Entry{Path: "/a", Type: msclient.Dir, FileID: 2, FileVersion: 1, Generation: 1})
		ms.Put(msclient.Entry{Path: "/a/b", Type: msclient.File, FileID: 3, FileVersion: 1, Generation: 1})
		fs = NewAGFS(ms)
	})

	It("walks the frontier from the volume root and discovers every descendant", func() {
		Expect(fs.DownloadMSFSMap(context.Background(), nil)).To(Succeed())

		root, ok := fs.Get("/")
		Expect(ok).To(BeTrue())
		Expect(root.CacheValid).To(BeTrue())

		a, ok := fs.Get("/a")
		Expect(ok).To(BeTrue())
		Expect(a.Type).To(Equal(Dir))
		Expect(a.MS.FileID).To(Equal(uint64(2)))

		b, ok := fs.Get("/a/b")
		Expect(ok).To(BeTrue())
		Expect(b.Type).To(Equal(File))
		Expect(b.MS.FileID).To(Equal(uint64(3)))
	})

	It("discovers descendants on a targeted re-scan seeded with a subdirectory", func() {
		// A frontier of ["/a"] skips the volume-root walk and lists /a
		// directly, so /a/b is still discovered.
		Expect(fs.DownloadMSFSMap(context.Background(), []string{"/a"})).To(Succeed())
		b, ok := fs.Get("/a/b")
		Expect(ok).To(BeTrue())
		Expect(b.Type).To(Equal(File))
	})

	It("computes a stale-dir frontier from a child-count mismatch", func() {
		Expect(fs.DownloadMSFSMap(context.Background(), nil)).To(Succeed())

		stale := fs.StaleDirFrontier(map[string]int{"/a": 5})
		Expect(stale).To(ContainElement("/a"))

		fresh := fs.StaleDirFrontier(map[string]int{"/a": 0})
		Expect(fresh).NotTo(ContainElement("/a"))
	})
})
