package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rewind/pkg/storage/sqlite"
	"github.com/papercomputeco/rewind/pkg/turn"
)

func testTurn(sessionKey, content string, createdAt time.Time) *turn.Turn {
	return &turn.Turn{
		SessionKey:    sessionKey,
		TurnType:      turn.TypeUser,
		Content:       content,
		TokenEstimate: turn.EstimateTokens(content),
		CreatedAt:     createdAt,
	}
}

var _ = Describe("Driver", func() {
	var (
		driver *sqlite.Driver
		ctx    context.Context
		epoch  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		epoch = time.Now().Add(-time.Minute)

		var err error
		dbPath := filepath.Join(GinkgoT().TempDir(), "rewind.sqlite")
		driver, err = sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	Describe("Insert", func() {
		It("assigns an id when none is given", func() {
			res, err := driver.Insert(ctx, testTurn("s1", "hello there", epoch))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ID).NotTo(BeEmpty())
		})

		It("round-trips metadata", func() {
			t := testTurn("s1", "hello there", epoch)
			t.Metadata = map[string]any{"origin": "transcript", "source_file": "abc.jsonl"}
			_, err := driver.Insert(ctx, t)
			Expect(err).NotTo(HaveOccurred())

			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Metadata).To(HaveKeyWithValue("origin", "transcript"))
		})
	})

	Describe("QueryRecent", func() {
		BeforeEach(func() {
			for i := range 5 {
				t := testTurn("s1", fmt.Sprintf("message number %d", i), epoch.Add(time.Duration(i)*time.Second))
				_, err := driver.Insert(ctx, t)
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.Insert(ctx, testTurn("other", "unrelated message", epoch))
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns turns newest first", func() {
			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(5))
			Expect(turns[0].Content).To(Equal("message number 4"))
			Expect(turns[4].Content).To(Equal("message number 0"))
		})

		It("honors the limit", func() {
			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("message number 4"))
		})

		It("filters by the since cutoff", func() {
			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(2*time.Second), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
		})

		It("returns an empty slice for an unknown session", func() {
			turns, err := driver.QueryRecent(ctx, "nope", epoch, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("breaks created_at ties by insertion order", func() {
			same := epoch.Add(time.Minute)
			_, err := driver.Insert(ctx, testTurn("ties", "first at same instant", same))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, testTurn("ties", "second at same instant", same))
			Expect(err).NotTo(HaveOccurred())

			turns, err := driver.QueryRecent(ctx, "ties", epoch, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns[0].Content).To(Equal("second at same instant"))
			Expect(turns[1].Content).To(Equal("first at same instant"))
		})
	})

	Describe("ListSessions and Stats", func() {
		BeforeEach(func() {
			_, err := driver.Insert(ctx, testTurn("s1", "hello there", epoch))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, testTurn("s1", "hello again friend", epoch.Add(time.Second)))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, testTurn("s2", "different session", epoch))
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists distinct sessions", func() {
			sessions, err := driver.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(ConsistOf("s1", "s2"))
		})

		It("counts turns and sessions", func() {
			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalTurns).To(Equal(3))
			Expect(stats.TotalSessions).To(Equal(2))
			Expect(stats.Tier).To(Equal("sqlite"))
		})
	})

	Describe("PruneOlderThan", func() {
		It("removes the oldest turns beyond the cap for one session only", func() {
			for i := range 7 {
				t := testTurn("s1", fmt.Sprintf("session one turn %d", i), epoch.Add(time.Duration(i)*time.Second))
				_, err := driver.Insert(ctx, t)
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.Insert(ctx, testTurn("s2", "must survive pruning", epoch))
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.PruneOlderThan(ctx, "s1", 5)).To(Succeed())

			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(5))
			// Oldest two are the ones removed.
			Expect(turns[len(turns)-1].Content).To(Equal("session one turn 2"))

			other, err := driver.QueryRecent(ctx, "s2", epoch.Add(-time.Second), 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(HaveLen(1))
		})

		It("is a no-op below the cap", func() {
			_, err := driver.Insert(ctx, testTurn("s1", "only one turn", epoch))
			Expect(err).NotTo(HaveOccurred())

			Expect(driver.PruneOlderThan(ctx, "s1", 5)).To(Succeed())

			turns, err := driver.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})
	})

	Describe("DeleteOlderThan", func() {
		It("deletes across sessions and reports the count", func() {
			_, err := driver.Insert(ctx, testTurn("s1", "ancient history", epoch))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, testTurn("s2", "also ancient", epoch))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, testTurn("s1", "recent message", epoch.Add(time.Hour)))
			Expect(err).NotTo(HaveOccurred())

			deleted, err := driver.DeleteOlderThan(ctx, epoch.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(2)))

			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalTurns).To(Equal(1))
		})
	})

	Describe("persistence", func() {
		It("survives close and reopen", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "reopen.sqlite")
			first, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = first.Insert(ctx, testTurn("s1", "durable message", epoch))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Close()).To(Succeed())

			second, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer second.Close()

			turns, err := second.QueryRecent(ctx, "s1", epoch.Add(-time.Second), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Content).To(Equal("durable message"))
		})

		It("reports persistent", func() {
			Expect(driver.Persistent()).To(BeTrue())
		})
	})
})
