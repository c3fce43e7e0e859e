package watcher_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rewind/pkg/capture"
	rewindlogger "github.com/papercomputeco/rewind/pkg/logger"
	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/storage/flatfile"
	"github.com/papercomputeco/rewind/pkg/turn"
	testutils "github.com/papercomputeco/rewind/pkg/utils/test"
	"github.com/papercomputeco/rewind/pkg/watcher"
)

// blockingDriver stalls Insert until released, standing in for a slow
// storage tier.
type blockingDriver struct {
	*testutils.MockDriver
	started chan struct{}
	release chan struct{}
}

func (d *blockingDriver) Insert(ctx context.Context, t *turn.Turn) (*storage.InsertResult, error) {
	close(d.started)
	<-d.release
	return d.MockDriver.Insert(ctx, t)
}

func transcriptLine(entryType, text string) string {
	return fmt.Sprintf(
		`{"type":%q,"uuid":"u1","timestamp":"2026-08-30T09:00:00Z","sessionId":"abc","message":{"role":%q,"content":[{"type":"text","text":%q}]}}`+"\n",
		entryType, entryType, text,
	)
}

func appendToFile(path, data string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	Expect(err).NotTo(HaveOccurred())
	_, err = f.WriteString(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(f.Close()).To(Succeed())
}

var _ = Describe("Watcher", func() {
	var (
		dir        string
		driver     *flatfile.Driver
		w          *watcher.Watcher
		ctx        context.Context
		cancel     context.CancelFunc
		epoch      time.Time
		captureSvc *capture.Service
	)

	logger := rewindlogger.Nop()

	storedTurns := func(sessionKey string) []*turn.Turn {
		turns, err := driver.QueryRecent(context.Background(), sessionKey, epoch, 100)
		Expect(err).NotTo(HaveOccurred())
		return turns
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		epoch = time.Now().Add(-time.Minute)
		dir = GinkgoT().TempDir()

		var err error
		driver, err = flatfile.NewDriver(filepath.Join(GinkgoT().TempDir(), "turns.jsonl"))
		Expect(err).NotTo(HaveOccurred())
		captureSvc = capture.NewService(driver, logger, 0)
	})

	AfterEach(func() {
		if w != nil {
			w.Close()
			w = nil
		}
		cancel()
		driver.Close()
	})

	startWatcher := func() {
		var err error
		w, err = watcher.New(watcher.Config{Dir: dir, Capture: captureSvc, Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Start(ctx)).To(Succeed())
	}

	It("requires a directory and a capture service", func() {
		_, err := watcher.New(watcher.Config{Capture: captureSvc, Logger: logger})
		Expect(err).To(HaveOccurred())

		_, err = watcher.New(watcher.Config{Dir: dir, Logger: logger})
		Expect(err).To(HaveOccurred())
	})

	It("captures entries appended to an existing transcript", func() {
		path := filepath.Join(dir, "abcdef123456.jsonl")
		appendToFile(path, transcriptLine("user", "history before the watcher started"))

		startWatcher()

		appendToFile(path, transcriptLine("assistant", "a brand new assistant reply"))

		sessionKey := watcher.SessionKeyForFile(path)
		Eventually(func() []*turn.Turn {
			return storedTurns(sessionKey)
		}, 3*time.Second, 20*time.Millisecond).Should(HaveLen(1))

		stored := storedTurns(sessionKey)[0]
		Expect(stored.TurnType).To(Equal("assistant"))
		Expect(stored.Content).To(Equal("a brand new assistant reply"))
		Expect(stored.Metadata).To(HaveKeyWithValue("origin", "transcript"))
		Expect(stored.Metadata).To(HaveKeyWithValue("source_file", "abcdef123456.jsonl"))
	})

	It("never replays history present before startup", func() {
		path := filepath.Join(dir, "abcdef123456.jsonl")
		appendToFile(path, transcriptLine("user", "history before the watcher started"))

		startWatcher()

		Consistently(func() []*turn.Turn {
			return storedTurns(watcher.SessionKeyForFile(path))
		}, 300*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
	})

	It("picks up files created after startup from byte zero", func() {
		startWatcher()

		path := filepath.Join(dir, "ffffeeee0000.jsonl")
		appendToFile(path, transcriptLine("user", "first message in a new session"))

		Eventually(func() []*turn.Turn {
			return storedTurns(watcher.SessionKeyForFile(path))
		}, 3*time.Second, 20*time.Millisecond).Should(HaveLen(1))
	})

	It("advances the offset to the file size after consuming", func() {
		path := filepath.Join(dir, "abcdef123456.jsonl")
		appendToFile(path, transcriptLine("user", "history before the watcher started"))

		startWatcher()

		appendToFile(path, transcriptLine("assistant", "a brand new assistant reply"))

		Eventually(func() int64 {
			return w.Offset(path)
		}, 3*time.Second, 20*time.Millisecond).Should(Equal(fileSize(path)))
	})

	It("keeps offsets readable while a storage write is in flight", func() {
		path := filepath.Join(dir, "abcdef123456.jsonl")
		appendToFile(path, transcriptLine("user", "history before the watcher started"))

		blocking := &blockingDriver{
			MockDriver: testutils.NewMockDriver(),
			started:    make(chan struct{}),
			release:    make(chan struct{}),
		}
		DeferCleanup(func() { close(blocking.release) })
		captureSvc = capture.NewService(blocking, logger, 0)

		startWatcher()

		appendToFile(path, transcriptLine("assistant", "a brand new assistant reply"))
		Eventually(blocking.started, 3*time.Second).Should(BeClosed())

		// The offset is advanced and readable even though the insert has
		// not returned yet.
		read := make(chan int64, 1)
		go func() {
			defer GinkgoRecover()
			read <- w.Offset(path)
		}()
		Eventually(read, time.Second).Should(Receive(Equal(fileSize(path))))
	})

	It("skips malformed lines and short noise without stalling", func() {
		path := filepath.Join(dir, "abcdef123456.jsonl")
		startWatcher()

		appendToFile(path, "{broken json line\n")
		appendToFile(path, transcriptLine("user", "ok"))
		appendToFile(path, transcriptLine("system", "system chatter that is long enough"))
		appendToFile(path, transcriptLine("assistant", "a real answer worth keeping"))

		sessionKey := watcher.SessionKeyForFile(path)
		Eventually(func() []*turn.Turn {
			return storedTurns(sessionKey)
		}, 3*time.Second, 20*time.Millisecond).Should(HaveLen(1))
		Expect(storedTurns(sessionKey)[0].Content).To(Equal("a real answer worth keeping"))
	})

	It("ignores files that are not transcripts", func() {
		startWatcher()

		appendToFile(filepath.Join(dir, "notes.txt"), transcriptLine("user", "not a transcript at all"))

		Consistently(func() []string {
			sessions, err := driver.ListSessions(context.Background())
			Expect(err).NotTo(HaveOccurred())
			return sessions
		}, 300*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
	})
})

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	Expect(err).NotTo(HaveOccurred())
	return info.Size()
}

var _ = Describe("SessionKeyForFile", func() {
	It("uses the prefix plus the first eight characters of the name", func() {
		Expect(watcher.SessionKeyForFile("/tmp/abcdef123456.jsonl")).To(Equal("agent-abcdef12"))
	})

	It("uses the whole name when shorter than eight characters", func() {
		Expect(watcher.SessionKeyForFile("/tmp/abc.jsonl")).To(Equal("agent-abc"))
	})

	It("collides for files sharing a prefix", func() {
		a := watcher.SessionKeyForFile("/tmp/abcdef12-one.jsonl")
		b := watcher.SessionKeyForFile("/tmp/abcdef12-two.jsonl")
		Expect(a).To(Equal(b))
	})
})
