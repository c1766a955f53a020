package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reels/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		manager *dotdir.Manager
		tmpDir  string
	)

	BeforeEach(func() {
		manager = dotdir.NewManager()
		tmpDir = GinkgoT().TempDir()
	})

	Describe("Target", func() {
		It("uses the override directory when given", func() {
			override := filepath.Join(tmpDir, "custom")

			target, err := manager.Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(Equal(override))

			info, err := os.Stat(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("prefers a local .reels directory over home", func() {
			Expect(os.MkdirAll(filepath.Join(tmpDir, ".reels"), 0o755)).To(Succeed())

			origDir, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())
			defer func() { _ = os.Chdir(origDir) }()

			target, err := manager.Target("")
			Expect(err).NotTo(HaveOccurred())
			// The tmp dir may be behind a symlink; compare resolved paths.
			want, err := filepath.EvalSymlinks(filepath.Join(tmpDir, ".reels"))
			Expect(err).NotTo(HaveOccurred())
			got, err := filepath.EvalSymlinks(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})
	})

	Describe("SnapshotsDir", func() {
		It("creates the snapshots subdirectory under the target", func() {
			override := filepath.Join(tmpDir, "conf")

			dir, err := manager.SnapshotsDir(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(Equal(filepath.Join(override, "snapshots")))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})
	})
})
