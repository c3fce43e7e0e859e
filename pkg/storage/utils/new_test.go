package storageutils_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	rewindlogger "github.com/papercomputeco/rewind/pkg/logger"
	storageutils "github.com/papercomputeco/rewind/pkg/storage/utils"
)

var _ = Describe("NewDriver", func() {
	var ctx context.Context

	logger := rewindlogger.Nop()

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("selects sqlite when no postgres URL is configured", func() {
		dir := GinkgoT().TempDir()
		driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
			SQLitePath:   filepath.Join(dir, "rewind.sqlite"),
			FlatFilePath: filepath.Join(dir, "turns.jsonl"),
			Logger:       logger,
		})
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Tier).To(Equal("sqlite"))
	})

	It("falls back to the flat file when the sqlite path is unusable", func() {
		dir := GinkgoT().TempDir()
		driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
			SQLitePath:   filepath.Join(dir, "missing", "nested", "rewind.sqlite"),
			FlatFilePath: filepath.Join(dir, "turns.jsonl"),
			Logger:       logger,
		})
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Tier).To(Equal("flatfile"))
	})

	It("fails when every tier is unavailable", func() {
		dir := GinkgoT().TempDir()
		// A directory is not openable as the flat file.
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
			SQLitePath:   filepath.Join(dir, "missing", "nested", "rewind.sqlite"),
			FlatFilePath: dir,
			Logger:       logger,
		})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no storage tier available"))
	})
})
