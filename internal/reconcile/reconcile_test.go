package reconcile

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

var _ = Describe("Reconcile", func() {
	var g *fakeGraph
	var t0 time.Time

	const (
		mainBranch = "main"
		reviewRef  = "origin/CR/AB-100"
		ticketID   = "AB#100"
	)

	at := func(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

	BeforeEach(func() {
		g = newFakeGraph()
		t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		g.bases[reviewRef+".."+mainBranch] = "ba5e0000"
	})

	Describe("with no remote review branch", func() {
		It("reports none when no commits reference the ticket", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-other", "00000000", "unrelated work", "", at(0))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyNone))
			Expect(plan.Commits).To(BeEmpty())
		})

		It("plans a create from the parent of the first commit", func() {
			a := g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			b := g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 fix2", "", at(5))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyCreate))
			Expect(hashes(plan.Commits)).To(Equal([]string{a.FullHash, b.FullHash}))
			Expect(hashes(plan.Pending)).To(Equal([]string{a.FullHash, b.FullHash}))
			Expect(plan.StartingPoint).To(Equal("00000000"))
		})

		It("matches the ticket id case-insensitively", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "ab#100 lowercase tag", "", at(0))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyCreate))
			Expect(plan.Commits).To(HaveLen(1))
		})

		It("never collects a ticket whose id merely extends the requested one", func() {
			a := g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#1000 unrelated ticket", "", at(5))
			g.addCommit(mainBranch, "cccc0003", "fp-c", "bbbb0002", "AB#1001 also unrelated", "", at(10))
			d := g.addCommit(mainBranch, "dddd0004", "fp-d", "cccc0003", "trailing mention", "Closes AB#100", at(15))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyCreate))
			Expect(hashes(plan.Commits)).To(Equal([]string{a.FullHash, d.FullHash}))
		})

		It("fails with an ambiguous starting point for a root commit", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "", "AB#100 initial", "", at(0))

			_, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).To(MatchError(ErrAmbiguousStartingPoint))
		})
	})

	Describe("revert detection", func() {
		It("excludes both the revert and its target", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 keeper", "", at(5))
			g.addCommit(mainBranch, "cccc0003", "fp-rev", "bbbb0002", `Revert "AB#100 fix"`, revertBody("aaaa0001"), at(10))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(plan.Commits)).To(Equal([]string{"bbbb0002"}))
		})

		It("ignores commits that only mention Revert in prose", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 Revert-proof the parser", "no structured marker here", at(0))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Commits).To(HaveLen(1))
		})

		It("excludes a reverted pair even when the target hash no longer resolves", func() {
			// Target was rebased away: only its re-committed twin (same
			// fingerprint, new hash) is still in the pool.
			g.addCommit(mainBranch, "dddd0004", "fp-a", "00000000", "AB#100 fix (rebased)", "", at(0))
			g.addCommit(mainBranch, "cccc0003", "fp-rev", "dddd0004", `Revert "AB#100 fix"`, revertBody("dddd0004"), at(10))
			g.addCommit(mainBranch, "eeee0005", "fp-e", "cccc0003", "AB#100 keeper", "", at(15))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(plan.Commits)).To(Equal([]string{"eeee0005"}))
		})

		It("reports none when every commit is reverted and no branch exists", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "cccc0003", "fp-rev", "aaaa0001", `Revert "AB#100 fix"`, revertBody("aaaa0001"), at(10))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyNone))
		})
	})

	Describe("deduplication", func() {
		It("never emits two commits with the same fingerprint", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 fix2", "", at(5))
			// Same change already cherry-picked to the review branch
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(2))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())

			seen := map[model.Fingerprint]bool{}
			for _, c := range plan.Commits {
				fp, err := g.FingerprintOf(c.FullHash)
				Expect(err).NotTo(HaveOccurred())
				Expect(seen[fp]).To(BeFalse(), "duplicate fingerprint %s", fp)
				seen[fp] = true
			}
		})

		It("prefers the main-branch commit on a fingerprint collision", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(2))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(plan.Commits)).To(Equal([]string{"aaaa0001"}))
		})
	})

	Describe("strategy classification with an existing branch", func() {
		It("is a no-op when the branch matches the desired set", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 fix2", "", at(5))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))
			g.addUnique(reviewRef, "9999bbb2", "fp-b", "AB#100 fix2", pickedBody("bbbb0002"), at(7))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyNoOp))
			Expect(plan.Pending).To(BeEmpty())
			Expect(plan.Preapplied).To(Equal([]Applied{
				{Origin: "aaaa0001", New: "9999aaa1"},
				{Origin: "bbbb0002", New: "9999bbb2"},
			}))
		})

		It("is idempotent: reconciling an up-to-date branch twice stays no-op", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))

			p := Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID}
			first, err := Reconcile(g, p)
			Expect(err).NotTo(HaveOccurred())
			second, err := Reconcile(g, p)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Strategy).To(Equal(StrategyNoOp))
			Expect(second.Strategy).To(Equal(StrategyNoOp))
		})

		It("appends when applied fingerprints are a strict subset", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 fix2", "", at(5))
			g.addCommit(mainBranch, "cccc0003", "fp-c", "bbbb0002", "AB#100 fix3", "", at(10))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyAppend))
			Expect(hashes(plan.Pending)).To(Equal([]string{"bbbb0002", "cccc0003"}))
			Expect(plan.Preapplied).To(Equal([]Applied{{Origin: "aaaa0001", New: "9999aaa1"}}))
		})

		It("rebuilds when an applied fingerprint is no longer desired", func() {
			// The original fix was amended on main: new hash, new fingerprint.
			g.addCommit(mainBranch, "dddd0004", "fp-a2", "00000000", "AB#100 fix (amended)", "", at(0))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "dddd0004", "AB#100 fix2", "", at(5))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))
			g.fps["aaaa0001"] = "fp-a" // the pre-amend object still exists

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyRebuild))
			Expect(hashes(plan.Pending)).To(Equal([]string{"dddd0004", "bbbb0002"}))
			Expect(plan.StartingPoint).To(Equal("00000000"))
		})

		It("rebuilds to the merge base when the feature was fully reverted", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "cccc0003", "fp-rev", "aaaa0001", `Revert "AB#100 fix"`, revertBody("aaaa0001"), at(10))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyRebuild))
			Expect(plan.Commits).To(BeEmpty())
			Expect(plan.Pending).To(BeEmpty())
			Expect(plan.StartingPoint).To(Equal("ba5e0000"))
		})

		It("keeps a direct review-branch commit without re-applying it", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))
			// Authored straight on the review branch, no trailer
			g.addUnique(reviewRef, "9999ddd4", "fp-d", "AB#100 review fixup", "", at(7))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyNoOp))
			Expect(hashes(plan.Commits)).To(Equal([]string{"aaaa0001", "9999ddd4"}))
			Expect(plan.Pending).To(BeEmpty())
		})

		It("rebuilds when a direct review-branch commit was reverted on main", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			g.addCommit(mainBranch, "cccc0003", "fp-rev", "aaaa0001", `Revert "AB#100 review fixup"`, revertBody("9999ddd4"), at(10))
			g.addUnique(reviewRef, "9999aaa1", "fp-a", "AB#100 fix", pickedBody("aaaa0001"), at(6))
			g.addUnique(reviewRef, "9999ddd4", "fp-d", "AB#100 review fixup", "", at(7))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyRebuild))
			Expect(hashes(plan.Commits)).To(Equal([]string{"aaaa0001"}))
			Expect(plan.StartingPoint).To(Equal("00000000"))
		})

		It("matches a conflict-resolved pick through its origin trailer", func() {
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 fix", "", at(0))
			// The pick's own patch-id drifted during conflict resolution,
			// but its trailer still names the origin.
			g.addUnique(reviewRef, "9999aaa1", "fp-a-drifted", "AB#100 fix", pickedBody("aaaa0001"), at(6))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(plan.Strategy).To(Equal(StrategyNoOp))
		})
	})

	Describe("ordering", func() {
		It("keeps ancestry order within each pool and merges by author time", func() {
			// Author times deliberately out of order on main (rebases do
			// this); ancestry order must win within the pool.
			g.addCommit(mainBranch, "aaaa0001", "fp-a", "00000000", "AB#100 first by ancestry", "", at(20))
			g.addCommit(mainBranch, "bbbb0002", "fp-b", "aaaa0001", "AB#100 second by ancestry", "", at(10))
			// A review-only change authored before both
			g.addUnique(reviewRef, "9999ccc3", "fp-c", "AB#100 review-only change", "", at(5))

			plan, err := Reconcile(g, Params{MainBranch: mainBranch, ReviewRef: reviewRef, TicketID: ticketID})
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(plan.Commits)).To(Equal([]string{"9999ccc3", "aaaa0001", "bbbb0002"}))
		})
	})
})

var _ = Describe("ParseStrategy", func() {
	It("round-trips every strategy", func() {
		for _, s := range []Strategy{StrategyNone, StrategyCreate, StrategyAppend, StrategyRebuild, StrategyNoOp} {
			got, err := ParseStrategy(s.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(s))
		}
	})

	It("rejects unknown values", func() {
		_, err := ParseStrategy("bogus")
		Expect(err).To(HaveOccurred())
	})
})
